package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langchou/carlisting/internal/apperr"
	"github.com/langchou/carlisting/internal/media"
	"github.com/langchou/carlisting/internal/service"
)

// 表单中非文件字段允许占用的内存
const multipartMemory = 1 << 20

// ListCars 获取车辆列表，最新的在前
func (h *Handler) ListCars(c *gin.Context) {
	cars, err := h.listing.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cars)
}

// GetCar 获取车辆详情
func (h *Handler) GetCar(c *gin.Context) {
	id, ok := h.carID(c)
	if !ok {
		return
	}

	car, err := h.listing.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, car)
}

// CreateCar 添加车辆
// POST /api/cars，multipart 字段 name/price/description，文件字段 photo
func (h *Handler) CreateCar(c *gin.Context) {
	input, cleanup, err := h.bindCarInput(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer cleanup()

	car, err := h.listing.Create(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          car.ID,
		"name":        car.Name,
		"price":       car.Price,
		"description": car.Description,
		"image":       car.Image,
	})
}

// UpdateCar 部分更新车辆，未提供的字段保持不变
func (h *Handler) UpdateCar(c *gin.Context) {
	id, ok := h.carID(c)
	if !ok {
		return
	}

	input, cleanup, err := h.bindCarInput(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer cleanup()

	if err := h.listing.Update(c.Request.Context(), id, input); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteCar 删除车辆
func (h *Handler) DeleteCar(c *gin.Context) {
	id, ok := h.carID(c)
	if !ok {
		return
	}

	if err := h.listing.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) carID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.respondError(c, apperr.Validation("Invalid car ID"))
		return 0, false
	}
	return id, true
}

type carJSON struct {
	Name        *string         `json:"name"`
	Price       json.RawMessage `json:"price"`
	Description *string         `json:"description"`
}

// bindCarInput 解析 JSON、urlencoded 或 multipart 请求体。
// 空白字符串视为未提供；只有 multipart 可以携带图片。
func (h *Handler) bindCarInput(c *gin.Context) (service.CarInput, func(), error) {
	noop := func() {}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+multipartMemory)

	if c.ContentType() == gin.MIMEJSON {
		var body carJSON
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			if tooLarge(err) {
				return service.CarInput{}, noop, h.tooLargeError()
			}
			return service.CarInput{}, noop, apperr.Validation("Invalid JSON body")
		}
		price, err := parsePrice(jsonPrice(body.Price))
		if err != nil {
			return service.CarInput{}, noop, err
		}
		return service.CarInput{
			Name:        optional(body.Name),
			Price:       price,
			Description: optional(body.Description),
		}, noop, nil
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if tooLarge(err) {
			return service.CarInput{}, noop, h.tooLargeError()
		}
		return service.CarInput{}, noop, apperr.Validation("Invalid form data")
	}

	field := func(key string) *string {
		v, ok := c.GetPostForm(key)
		if !ok {
			return nil
		}
		return optional(&v)
	}

	price, err := parsePrice(field("price"))
	if err != nil {
		return service.CarInput{}, noop, err
	}
	input := service.CarInput{
		Name:        field("name"),
		Price:       price,
		Description: field("description"),
	}

	if form := c.Request.MultipartForm; form != nil && len(form.File["photo"]) > 0 {
		upload, file, err := h.openPhoto(form.File["photo"][0])
		if err != nil {
			return service.CarInput{}, noop, err
		}
		input.Photo = upload
		return input, func() { file.Close() }, nil
	}

	return input, noop, nil
}

// openPhoto 检查大小并按文件头判断类型
func (h *Handler) openPhoto(fh *multipart.FileHeader) (*media.Upload, multipart.File, error) {
	if fh.Size > h.opts.MaxUploadBytes {
		return nil, nil, h.tooLargeError()
	}

	file, err := fh.Open()
	if err != nil {
		return nil, nil, apperr.Validation("Invalid photo upload")
	}

	contentType, err := media.DetectContentType(file)
	if err != nil {
		file.Close()
		return nil, nil, apperr.Validation("Invalid photo upload")
	}
	if !media.Allowed(contentType) {
		file.Close()
		return nil, nil, apperr.Validation("Photo must be a JPEG, PNG, GIF or WebP image")
	}

	return &media.Upload{
		Reader:      file,
		Size:        fh.Size,
		Filename:    fh.Filename,
		ContentType: contentType,
	}, file, nil
}

func (h *Handler) tooLargeError() error {
	return apperr.TooLarge(fmt.Sprintf("Photo must not exceed %d MB", h.opts.MaxUploadBytes>>20))
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// optional 去掉首尾空白，空字符串视为未提供
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// jsonPrice 接受数字或数字字符串
func jsonPrice(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return optional(&s)
	}
	v := string(raw)
	return &v
}

func parsePrice(s *string) (*float64, error) {
	if s == nil {
		return nil, nil
	}
	price, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, apperr.Validation("price must be a number")
	}
	return &price, nil
}
