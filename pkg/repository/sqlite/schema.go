package sqlite

// Schema contains the SQL statements to create the metadata schema.
// Array columns hold JSON text.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id          TEXT NOT NULL,
    collection  TEXT NOT NULL,
    title       TEXT NOT NULL,
    details     TEXT NOT NULL,
    image_paths TEXT NOT NULL DEFAULT '[]',
    services    TEXT NOT NULL DEFAULT '[]',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME,
    PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS services (
    id               TEXT NOT NULL,
    collection       TEXT NOT NULL,
    title            TEXT NOT NULL,
    details          TEXT NOT NULL,
    icon             TEXT,
    image_paths      TEXT NOT NULL DEFAULT '[]',
    price_cents      INTEGER,
    currency         TEXT NOT NULL DEFAULT 'USD',
    is_bookable      BOOLEAN NOT NULL DEFAULT FALSE,
    duration_minutes INTEGER,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(collection, created_at);
CREATE INDEX IF NOT EXISTS idx_services_created ON services(collection, created_at);
CREATE INDEX IF NOT EXISTS idx_services_price ON services(collection, price_cents);
`
