package sabitcms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/eringen/sabitcms/content"
)

const (
	maxImageWidth = 1200
	jpegQuality   = 80
	maxUploadSize = 5 << 20 // 5MB
)

// processImage decodes an image from src, optionally resizes it to maxImageWidth,
// and encodes it as JPEG. Returns metadata and the encoded bytes.
func processImage(src io.Reader, originalName string) (content.Image, []byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return content.Image{}, nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w = maxImageWidth
		h = newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return content.Image{}, nil, fmt.Errorf("encode jpeg: %w", err)
	}

	base := Slugify(strings.TrimSuffix(originalName, filepath.Ext(originalName)))
	if base == "" {
		base = "image"
	}

	return content.Image{
		Filename:     base + ".jpg",
		OriginalName: originalName,
		Width:        w,
		Height:       h,
		Size:         buf.Len(),
		UploadedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}, buf.Bytes(), nil
}

// ensureUniqueFilename appends a counter if filename already exists in the
// uploads directory or the database.
func (a *App) ensureUniqueFilename(ctx context.Context, img *content.Image) error {
	base := strings.TrimSuffix(img.Filename, ".jpg")
	candidate := img.Filename
	for counter := 2; ; counter++ {
		_, statErr := os.Stat(filepath.Join(a.Config.UploadsDir, candidate))
		known, err := a.Store.ImageExists(ctx, candidate)
		if err != nil {
			return err
		}
		if statErr != nil && !known {
			break
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, counter)
	}
	img.Filename = candidate
	return nil
}

func (a *App) imageURL(filename string) string {
	return "/uploads/" + filename
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded")
	}
	if file.Size > maxUploadSize {
		return echo.NewHTTPError(http.StatusBadRequest, "file too large (max 5MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	img, data, err := processImage(src, file.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "not an image, please upload only images")
	}

	ctx := c.Request().Context()
	if err := a.ensureUniqueFilename(ctx, &img); err != nil {
		return err
	}

	if err := os.MkdirAll(a.Config.UploadsDir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.Config.UploadsDir, img.Filename), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := a.Store.SaveImage(ctx, img); err != nil {
		return err
	}

	img.URL = a.imageURL(img.Filename)
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "url": img.URL, "data": img})
}

func (a *App) handleImageList(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	images, err := a.Store.ListImages(c.Request().Context(), c.QueryParam("sort") == "asc")
	if err != nil {
		return err
	}
	total := len(images)
	if limit > 0 && limit < total {
		images = images[:limit]
	}
	for i := range images {
		images[i].URL = a.imageURL(images[i].Filename)
	}
	if images == nil {
		images = []content.Image{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data": echo.Map{
			"results": len(images),
			"total":   total,
			"files":   images,
		},
	})
}

func (a *App) handleImageDelete(c echo.Context) error {
	filename := filepath.Base(c.Param("filename"))
	if filename == "." || filename == "/" || filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename required")
	}

	err := a.Store.DeleteImage(c.Request().Context(), filename)
	if errors.Is(err, content.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "file not found: "+filename)
	}
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(a.Config.UploadsDir, filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete file: %w", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "file deleted successfully"})
}
