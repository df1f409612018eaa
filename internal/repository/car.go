package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/carlisting/internal/models"
)

const carColumns = `id, name, price, description, image, created_at, updated_at`

// CarRepository 车辆数据仓库
type CarRepository struct {
	db  *DB
	now func() time.Time
}

// NewCarRepository 创建车辆仓库
func NewCarRepository(db *DB) *CarRepository {
	return &CarRepository{db: db, now: time.Now}
}

// Create 创建车辆，ID 由数据库生成
func (r *CarRepository) Create(ctx context.Context, car *models.Car) error {
	query := `
		INSERT INTO cars (name, price, description, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	now := r.now()
	err := r.db.Pool.QueryRow(ctx, query,
		car.Name,
		car.Price,
		car.Description,
		car.Image,
		now,
		now,
	).Scan(&car.ID)

	if err != nil {
		return fmt.Errorf("insert car: %w", err)
	}

	car.CreatedAt = now
	car.UpdatedAt = now
	return nil
}

// GetByID 通过 ID 获取车辆
func (r *CarRepository) GetByID(ctx context.Context, id int64) (*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE id = $1`

	car := &models.Car{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&car.ID,
		&car.Name,
		&car.Price,
		&car.Description,
		&car.Image,
		&car.CreatedAt,
		&car.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get car by id: %w", err)
	}
	return car, nil
}

// List 获取所有车辆，最新创建的在前
func (r *CarRepository) List(ctx context.Context) ([]*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars ORDER BY id DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	cars := make([]*models.Car, 0)
	for rows.Next() {
		car := &models.Car{}
		err := rows.Scan(
			&car.ID,
			&car.Name,
			&car.Price,
			&car.Description,
			&car.Image,
			&car.CreatedAt,
			&car.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		cars = append(cars, car)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cars: %w", err)
	}

	return cars, nil
}

// Update 部分更新车辆，只修改 patch 中非 nil 的字段。
// 只有列名会拼接进 SQL，所有值都以参数绑定。
func (r *CarRepository) Update(ctx context.Context, id int64, patch models.CarPatch) error {
	if patch.Empty() {
		return ErrNoFields
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Image != nil {
		add("image", *patch.Image)
	}
	add("updated_at", r.now())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE cars SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update car: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除车辆，不存在时返回 ErrNotFound
func (r *CarRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM cars WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete car: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
