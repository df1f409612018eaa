package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/langchou/carlisting/internal/apperr"
	"github.com/langchou/carlisting/internal/media"
	"github.com/langchou/carlisting/internal/models"
	"github.com/langchou/carlisting/internal/repository"
	"github.com/langchou/carlisting/internal/state"
	"github.com/langchou/carlisting/pkg/ws"
)

// 与 cars 表的列定义一致：name VARCHAR(255)，price NUMERIC(12, 2)
const (
	maxNameLength = 255
	maxPrice      = 9999999999.99
	priceScale    = 100
)

// CarStore 车辆持久化
type CarStore interface {
	List(ctx context.Context) ([]*models.Car, error)
	GetByID(ctx context.Context, id int64) (*models.Car, error)
	Create(ctx context.Context, car *models.Car) error
	Update(ctx context.Context, id int64, patch models.CarPatch) error
	Delete(ctx context.Context, id int64) error
}

// Notifier 列表变更推送，通常是 ws.Hub
type Notifier interface {
	BroadcastMessage(msgType string, data interface{})
}

// CarInput 创建/更新的输入，nil 表示未提供
type CarInput struct {
	Name        *string
	Price       *float64
	Description *string
	Photo       *media.Upload
}

func (in CarInput) empty() bool {
	return in.Name == nil && in.Price == nil && in.Description == nil && in.Photo == nil
}

// ListingService 车辆列表服务
type ListingService struct {
	logger       *zap.Logger
	cars         CarStore
	sink         media.Sink
	notifier     Notifier
	requirePhoto bool
}

// NewListingService 创建车辆列表服务，notifier 可为 nil
func NewListingService(logger *zap.Logger, cars CarStore, sink media.Sink, notifier Notifier, requirePhoto bool) *ListingService {
	return &ListingService{
		logger:       logger,
		cars:         cars,
		sink:         sink,
		notifier:     notifier,
		requirePhoto: requirePhoto,
	}
}

// RequirePhoto 创建时是否必须上传图片
func (s *ListingService) RequirePhoto() bool {
	return s.requirePhoto
}

// List 获取所有车辆
func (s *ListingService) List(ctx context.Context) ([]*models.Car, error) {
	cars, err := s.cars.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list cars", zap.Error(err))
		return nil, apperr.Store(err)
	}
	return cars, nil
}

// Get 获取单个车辆
func (s *ListingService) Get(ctx context.Context, id int64) (*models.Car, error) {
	car, err := s.cars.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Car not found")
		}
		s.logger.Error("Failed to get car", zap.Error(err), zap.Int64("car_id", id))
		return nil, apperr.Store(err)
	}
	return car, nil
}

// Create 创建车辆。先保存图片再写库，写库失败时删除刚保存的图片。
func (s *ListingService) Create(ctx context.Context, in CarInput) (*models.Car, error) {
	if in.Name == nil {
		return nil, apperr.Validation("name is required")
	}
	if in.Price == nil {
		return nil, apperr.Validation("price is required")
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	if in.Photo == nil && s.requirePhoto {
		return nil, apperr.Validation("photo is required")
	}

	// 客户端断开不影响已开始的写入
	ctx = context.WithoutCancel(ctx)
	flow := state.NewWriteFlow("create", s.logTransition)

	car := &models.Car{
		Name:        *in.Name,
		Price:       *in.Price,
		Description: in.Description,
	}

	if in.Photo != nil {
		url, err := s.storePhoto(ctx, flow, *in.Photo)
		if err != nil {
			return nil, err
		}
		car.Image = &url
	}

	if err := s.cars.Create(ctx, car); err != nil {
		s.logger.Error("Failed to create car", zap.Error(err), zap.String("name", car.Name))
		s.abort(ctx, flow)
		return nil, apperr.Store(err)
	}
	_ = flow.Persisted()

	s.logger.Info("Car created", zap.Int64("car_id", car.ID), zap.String("name", car.Name))
	s.notify(ws.MsgTypeCarCreated, car)
	return car, nil
}

// Update 部分更新车辆，未提供的字段保持不变。新图片只替换引用，旧图片保留。
func (s *ListingService) Update(ctx context.Context, id int64, in CarInput) error {
	if in.empty() {
		return apperr.NoFields()
	}
	if err := validate(in); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	flow := state.NewWriteFlow("update", s.logTransition)

	patch := models.CarPatch{
		Name:        in.Name,
		Price:       in.Price,
		Description: in.Description,
	}

	if in.Photo != nil {
		url, err := s.storePhoto(ctx, flow, *in.Photo)
		if err != nil {
			return err
		}
		patch.Image = &url
	}

	if err := s.cars.Update(ctx, id, patch); err != nil {
		s.abort(ctx, flow)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound("Car not found")
		case errors.Is(err, repository.ErrNoFields):
			return apperr.NoFields()
		}
		s.logger.Error("Failed to update car", zap.Error(err), zap.Int64("car_id", id))
		return apperr.Store(err)
	}
	_ = flow.Persisted()

	s.logger.Info("Car updated", zap.Int64("car_id", id))
	s.notify(ws.MsgTypeCarUpdated, idPayload(id))
	return nil
}

// Delete 删除车辆，不存在时返回 NotFound。图片不随之删除。
func (s *ListingService) Delete(ctx context.Context, id int64) error {
	if err := s.cars.Delete(context.WithoutCancel(ctx), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Car not found")
		}
		s.logger.Error("Failed to delete car", zap.Error(err), zap.Int64("car_id", id))
		return apperr.Store(err)
	}

	s.logger.Info("Car deleted", zap.Int64("car_id", id))
	s.notify(ws.MsgTypeCarDeleted, idPayload(id))
	return nil
}

func (s *ListingService) storePhoto(ctx context.Context, flow *state.WriteFlow, photo media.Upload) (string, error) {
	url, err := s.sink.Store(ctx, photo)
	if err != nil {
		s.logger.Error("Failed to store photo", zap.Error(err), zap.String("filename", photo.Filename))
		_ = flow.Fail()
		return "", apperr.Media(err)
	}
	if err := flow.MediaStored(url); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "Internal server error", err)
	}
	return url, nil
}

// abort 写库失败：已保存的图片尽力删除，删除失败只记录日志
func (s *ListingService) abort(ctx context.Context, flow *state.WriteFlow) {
	if !flow.NeedsCompensation() {
		_ = flow.Fail()
		return
	}

	url, err := flow.Compensate()
	if err != nil {
		s.logger.Error("Failed to compensate write", zap.Error(err))
		return
	}
	if err := s.sink.Remove(ctx, url); err != nil {
		s.logger.Warn("Failed to remove orphaned photo", zap.Error(err), zap.String("url", url))
		return
	}
	s.logger.Info("Removed orphaned photo", zap.String("url", url))
}

func (s *ListingService) logTransition(op, from, to string) {
	s.logger.Debug("Write flow transition",
		zap.String("op", op),
		zap.String("from", from),
		zap.String("to", to),
	)
}

func (s *ListingService) notify(msgType string, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.BroadcastMessage(msgType, data)
}

func idPayload(id int64) map[string]int64 {
	return map[string]int64{"id": id}
}

// validate 检查已提供字段的取值，拒绝数据库列无法原样保存的值
func validate(in CarInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return apperr.Validation("name must not be empty")
		}
		if !storableText(name) {
			return apperr.Validation("name must be valid UTF-8 text")
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return apperr.Validation("name is too long")
		}
	}
	if in.Description != nil && !storableText(*in.Description) {
		return apperr.Validation("description must be valid UTF-8 text")
	}
	if in.Price != nil {
		p := *in.Price
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return apperr.Validation("price must be a non-negative number")
		}
		if p > maxPrice {
			return apperr.Validation("price is too large")
		}
		if cents := p * priceScale; math.Abs(cents-math.Round(cents)) > 1e-6 {
			return apperr.Validation("price must have at most 2 decimal places")
		}
	}
	return nil
}

// storableText Postgres 文本列不接受非法 UTF-8 和 NUL
func storableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}
