//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"folio/pkg/config"
	"folio/pkg/models"
	"folio/pkg/repository"
)

type IntegrationTestSuite struct {
	suite.Suite
	container testcontainers.Container
	store     *Store
	ctx       context.Context
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()
	ctx, cancel := context.WithTimeout(s.ctx, 120*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "folio",
			"POSTGRES_PASSWORD": "folio",
			"POSTGRES_DB":       "folio",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	dsn := fmt.Sprintf("postgres://folio:folio@%s:%s/folio?sslmode=disable", host, port.Port())
	s.Require().NoError(Migrate(ctx, dsn))

	pool, err := NewPool(ctx, config.DatabaseConfig{
		DSN:             dsn,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	s.Require().NoError(err)
	s.store = New(pool)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *IntegrationTestSuite) TestProjectLifecycle() {
	created := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Project{
		ID:         "11111111-1111-1111-1111-111111111111",
		Collection: "main",
		Title:      "Teak deck",
		Details:    "Full teak replacement on a 40ft yacht",
		ImagePaths: []string{"11111111-1111-1111-1111-111111111111/1-0.jpg"},
		Services:   []string{"decking"},
		CreatedAt:  created,
	}
	s.Require().NoError(s.store.CreateProject(s.ctx, p))
	s.ErrorIs(s.store.CreateProject(s.ctx, p), repository.ErrExists)

	got, err := s.store.GetProject(s.ctx, "main", p.ID)
	s.Require().NoError(err)
	s.Equal(p.ImagePaths, got.ImagePaths)
	s.True(created.Equal(got.CreatedAt))

	s.Require().NoError(s.store.DeleteProject(s.ctx, "main", p.ID))
	_, err = s.store.GetProject(s.ctx, "main", p.ID)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *IntegrationTestSuite) TestServiceFilters() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, price := range []int64{1000, 5000, 20000} {
		p := price
		s.Require().NoError(s.store.CreateService(s.ctx, &models.Service{
			ID:         fmt.Sprintf("svc-%d", i),
			Collection: "filters",
			Title:      fmt.Sprintf("Service %d", i),
			Details:    "Service used for filter checks",
			PriceCents: &p,
			IsBookable: i != 1,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	minPrice, maxPrice := int64(2000), int64(30000)
	bookable := true
	list, err := s.store.ListServices(s.ctx, "filters", models.ServiceFilter{
		MinPrice: &minPrice,
		MaxPrice: &maxPrice,
		Bookable: &bookable,
	})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("svc-2", list[0].ID)
	s.Equal(models.DefaultCurrency, list[0].Currency)
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
