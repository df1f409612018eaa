package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/langchou/carlisting/internal/models"
)

var carRowColumns = []string{"id", "name", "price", "description", "image", "created_at", "updated_at"}

type CarRepoTestSuite struct {
	suite.Suite
	mock pgxmock.PgxPoolIface
	repo *CarRepository
	ctx  context.Context
	now  time.Time
}

func (s *CarRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(s.T(), err)
	s.mock = mock
	s.now = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.repo = NewCarRepository(NewWithPool(mock))
	s.repo.now = func() time.Time { return s.now }
	s.ctx = context.Background()
}

func (s *CarRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestCarRepoTestSuite(t *testing.T) {
	suite.Run(t, new(CarRepoTestSuite))
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func (s *CarRepoTestSuite) TestCreate_ReturnsGeneratedID() {
	car := &models.Car{Name: "Civic", Price: 100, Description: strPtr("compact"), Image: strPtr("/uploads/car_1.jpg")}

	s.mock.ExpectQuery(`INSERT INTO cars \(name, price, description, image, created_at, updated_at\)`).
		WithArgs("Civic", 100.0, car.Description, car.Image, s.now, s.now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	err := s.repo.Create(s.ctx, car)
	s.Require().NoError(err)
	s.Equal(int64(42), car.ID)
	s.Equal(s.now, car.CreatedAt)
	s.Equal(s.now, car.UpdatedAt)
}

func (s *CarRepoTestSuite) TestCreate_WithoutImage() {
	car := &models.Car{Name: "Civic", Price: 100}

	s.mock.ExpectQuery(`INSERT INTO cars`).
		WithArgs("Civic", 100.0, (*string)(nil), (*string)(nil), s.now, s.now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	s.Require().NoError(s.repo.Create(s.ctx, car))
	s.Nil(car.Image)
}

func (s *CarRepoTestSuite) TestCreate_DatabaseError() {
	s.mock.ExpectQuery(`INSERT INTO cars`).
		WithArgs("Civic", 100.0, pgxmock.AnyArg(), pgxmock.AnyArg(), s.now, s.now).
		WillReturnError(errors.New("connection refused"))

	err := s.repo.Create(s.ctx, &models.Car{Name: "Civic", Price: 100})
	s.Error(err)
	s.Contains(err.Error(), "insert car")
	s.Contains(err.Error(), "connection refused")
}

func (s *CarRepoTestSuite) TestList_OrderedByIDDesc() {
	s.mock.ExpectQuery(`SELECT (.+) FROM cars ORDER BY id DESC`).
		WillReturnRows(pgxmock.NewRows(carRowColumns).
			AddRow(int64(3), "Model 3", 300.0, strPtr("electric"), strPtr("/uploads/c.jpg"), s.now, s.now).
			AddRow(int64(2), "Corolla", 80.0, (*string)(nil), (*string)(nil), s.now, s.now).
			AddRow(int64(1), "Civic", 100.0, strPtr("compact"), strPtr("/uploads/a.jpg"), s.now, s.now))

	cars, err := s.repo.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(cars, 3)
	s.Equal([]int64{3, 2, 1}, []int64{cars[0].ID, cars[1].ID, cars[2].ID})
	s.Nil(cars[1].Image)
	s.Equal("electric", *cars[0].Description)
}

func (s *CarRepoTestSuite) TestList_EmptyIsNotNil() {
	s.mock.ExpectQuery(`SELECT (.+) FROM cars ORDER BY id DESC`).
		WillReturnRows(pgxmock.NewRows(carRowColumns))

	cars, err := s.repo.List(s.ctx)
	s.Require().NoError(err)
	s.NotNil(cars)
	s.Empty(cars)
}

func (s *CarRepoTestSuite) TestGetByID_Found() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM cars WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(carRowColumns).
			AddRow(int64(7), "Civic", 100.0, strPtr("compact"), strPtr("/uploads/a.jpg"), s.now, s.now))

	car, err := s.repo.GetByID(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal("Civic", car.Name)
	s.Equal(100.0, car.Price)
	s.Equal("/uploads/a.jpg", *car.Image)
}

func (s *CarRepoTestSuite) TestGetByID_NotFound() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM cars WHERE id = $1`)).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	car, err := s.repo.GetByID(s.ctx, 404)
	s.Nil(car)
	s.ErrorIs(err, ErrNotFound)
}

func (s *CarRepoTestSuite) TestUpdate_OnlyPrice() {
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE cars SET price = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(120.0, s.now, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.repo.Update(s.ctx, 7, models.CarPatch{Price: floatPtr(120)})
	s.NoError(err)
}

func (s *CarRepoTestSuite) TestUpdate_AllFieldsInColumnOrder() {
	s.mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE cars SET name = $1, price = $2, description = $3, image = $4, updated_at = $5 WHERE id = $6`)).
		WithArgs("Accord", 150.0, "midsize", "/uploads/b.png", s.now, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.repo.Update(s.ctx, 7, models.CarPatch{
		Name:        strPtr("Accord"),
		Price:       floatPtr(150),
		Description: strPtr("midsize"),
		Image:       strPtr("/uploads/b.png"),
	})
	s.NoError(err)
}

func (s *CarRepoTestSuite) TestUpdate_ValuesAreNeverInterpolated() {
	hostile := "x'; DROP TABLE cars; --"
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE cars SET name = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(hostile, s.now, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s.NoError(s.repo.Update(s.ctx, 1, models.CarPatch{Name: &hostile}))
}

func (s *CarRepoTestSuite) TestUpdate_EmptyPatchSkipsDatabase() {
	err := s.repo.Update(s.ctx, 7, models.CarPatch{})
	s.ErrorIs(err, ErrNoFields)
}

func (s *CarRepoTestSuite) TestUpdate_UnknownID() {
	s.mock.ExpectExec(`UPDATE cars SET`).
		WithArgs("Civic", s.now, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.repo.Update(s.ctx, 99, models.CarPatch{Name: strPtr("Civic")})
	s.ErrorIs(err, ErrNotFound)
}

func (s *CarRepoTestSuite) TestDelete() {
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cars WHERE id = $1`)).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	s.NoError(s.repo.Delete(s.ctx, 5))
}

func (s *CarRepoTestSuite) TestDelete_UnknownID() {
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cars WHERE id = $1`)).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	s.ErrorIs(s.repo.Delete(s.ctx, 5), ErrNotFound)
}

func (s *CarRepoTestSuite) TestDelete_DatabaseError() {
	s.mock.ExpectExec(`DELETE FROM cars`).
		WithArgs(int64(5)).
		WillReturnError(errors.New("timeout"))

	err := s.repo.Delete(s.ctx, 5)
	s.Error(err)
	s.Contains(err.Error(), "timeout")
	s.NotErrorIs(err, ErrNotFound)
}

func (s *CarRepoTestSuite) TestMigrate() {
	s.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cars`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	s.NoError(NewWithPool(s.mock).Migrate(s.ctx))
}

func (s *CarRepoTestSuite) TestMigrate_Error() {
	s.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cars`).
		WillReturnError(errors.New("permission denied"))

	err := NewWithPool(s.mock).Migrate(s.ctx)
	s.Error(err)
	s.Contains(err.Error(), "execute migration")
}
