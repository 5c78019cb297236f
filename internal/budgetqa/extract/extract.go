// Package extract 从 PDF 文件中按页提取文本，主引擎失败时切换到备用引擎。
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	bmodel "github.com/kart-io/budgetqa/internal/model"
	apierrors "github.com/kart-io/budgetqa/pkg/errors"
)

var (
	// ErrFileNotFound 文件不存在。
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedType 扩展名不在允许列表中。
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrFileTooLarge 文件超过大小上限。
	ErrFileTooLarge = errors.New("file too large")
	// ErrCorruptFile 文件不是结构有效的 PDF。
	ErrCorruptFile = errors.New("corrupt or unreadable pdf")
	// ErrExtractionFailed 所有引擎均提取失败。
	ErrExtractionFailed = errors.New("extraction failed")
)

const hashBlockSize = 4096

func init() {
	// pdfcpu 默认会在用户目录下创建配置目录。
	api.DisableConfigDir()
}

// Config 提取配置。
type Config struct {
	// AllowedExtensions 允许的扩展名（小写，含点）。
	AllowedExtensions []string
	// MaxSizeMB 单个文件大小上限。
	MaxSizeMB float64
	// Fallback 主引擎失败时是否启用备用引擎。
	Fallback bool
}

// DefaultConfig 返回默认提取配置。
func DefaultConfig() Config {
	return Config{
		AllowedExtensions: []string{".pdf"},
		MaxSizeMB:         50,
		Fallback:          true,
	}
}

// Engine 单个提取引擎，对完整的文件内容按页输出结果。
type Engine interface {
	Method() bmodel.ExtractionMethod
	Pages(ctx context.Context, data []byte) ([]bmodel.PageContent, error)
}

// Extractor PDF 提取器。
type Extractor struct {
	cfg      Config
	primary  Engine
	fallback Engine
	now      func() time.Time
}

// Option 提取器选项。
type Option func(*Extractor)

// WithEngines 替换主引擎与备用引擎。
func WithEngines(primary, fallback Engine) Option {
	return func(e *Extractor) {
		e.primary = primary
		e.fallback = fallback
	}
}

// New 创建提取器。
func New(cfg Config, opts ...Option) *Extractor {
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultConfig().AllowedExtensions
	}
	e := &Extractor{
		cfg:      cfg,
		primary:  NewPrimaryEngine(),
		fallback: NewFallbackEngine(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 校验并提取单个文件。
func (e *Extractor) Extract(ctx context.Context, path string) (*bmodel.ExtractedDocument, error) {
	start := e.now()
	name := filepath.Base(path)
	logger.Infow("Starting PDF extraction", "file", name)

	info, err := e.validateFile(path)
	if err != nil {
		logger.Errorw("PDF validation failed", "file", name, "error", err.Error())
		return nil, err
	}

	hash, err := FileHash(path)
	if err != nil {
		return nil, fmt.Errorf("%w: hash %s: %v", ErrExtractionFailed, name, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, name, err)
	}
	if err := validatePDF(data); err != nil {
		logger.Errorw("PDF validation failed", "file", name, "error", err.Error())
		return nil, err
	}

	method := e.primary.Method()
	pages, primaryErr := runEngine(ctx, e.primary, data)
	if primaryErr != nil {
		if !e.cfg.Fallback || e.fallback == nil {
			logger.Errorw("Primary extraction failed", "file", name, "error", primaryErr.Error())
			return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, name, primaryErr)
		}
		logger.Warnw("Primary extraction failed, attempting fallback", "file", name, "error", primaryErr.Error())

		var fallbackErr error
		method = e.fallback.Method()
		pages, fallbackErr = runEngine(ctx, e.fallback, data)
		if fallbackErr != nil {
			logger.Errorw("Both extraction methods failed",
				"file", name,
				"primary_error", primaryErr.Error(),
				"fallback_error", fallbackErr.Error(),
			)
			return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, name, errors.Join(primaryErr, fallbackErr))
		}
	}

	doc := &bmodel.ExtractedDocument{
		Filename:         name,
		FilePath:         path,
		FileSizeMB:       round(float64(info.Size())/(1024*1024), 2),
		TotalPages:       len(pages),
		Pages:            pages,
		ExtractionMethod: method,
		FileHash:         hash,
		ExtractedAt:      e.now().UTC(),
		Metadata:         bmodel.Aggregate(pages),
	}
	doc.ProcessingTime = round(e.now().Sub(start).Seconds(), 3)

	logger.Infow("PDF extraction completed",
		"file", name,
		"pages", doc.TotalPages,
		"method", string(method),
		"words", doc.Metadata.TotalWords,
		"processing_time", doc.ProcessingTime,
	)
	return doc, nil
}

// runEngine 执行引擎，解析器内部的 panic 与零页结果均视为失败。
func runEngine(ctx context.Context, eng Engine, data []byte) (pages []bmodel.PageContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%s engine panic: %v", eng.Method(), r)
		}
	}()
	pages, err = eng.Pages(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s engine extracted no pages", eng.Method())
	}
	return pages, nil
}

func (e *Extractor) validateFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFileNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}

	if !e.allowed(path) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, strings.ToLower(filepath.Ext(path)))
	}

	sizeMB := float64(info.Size()) / (1024 * 1024)
	if e.cfg.MaxSizeMB > 0 && sizeMB > e.cfg.MaxSizeMB {
		return nil, fmt.Errorf("%w: %.2fMB (max: %gMB)", ErrFileTooLarge, sizeMB, e.cfg.MaxSizeMB)
	}
	return info, nil
}

// allowed 扩展名是否在允许列表中，不区分大小写。
func (e *Extractor) allowed(path string) bool {
	ext := filepath.Ext(path)
	for _, a := range e.cfg.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// validatePDF 使用 pdfcpu 以宽松模式校验文件结构。
func validatePDF(data []byte) error {
	pdfCtx, err := readContext(data)
	if err != nil {
		return err
	}
	if pdfCtx.PageCount == 0 {
		return fmt.Errorf("%w: document has no pages", ErrCorruptFile)
	}
	return nil
}

func readContext(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return pdfCtx, nil
}

// FileHash 以 4096 字节分块流式计算文件的 SHA-256。
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashBlockSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FailedFile 批量提取中失败的文件。
type FailedFile struct {
	Path  string `json:"path"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// Errno 把提取错误归类到对外错误码。
func Errno(err error) *apierrors.Errno {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return apierrors.ErrFileNotFound
	case errors.Is(err, ErrUnsupportedType):
		return apierrors.ErrUnsupportedFile
	case errors.Is(err, ErrFileTooLarge):
		return apierrors.ErrFileTooLarge
	case errors.Is(err, ErrCorruptFile):
		return apierrors.ErrCorruptFile
	case errors.Is(err, ErrExtractionFailed):
		return apierrors.ErrExtractionFailed
	default:
		return apierrors.ErrInvalidFile
	}
}

// BatchResult 批量提取结果。
type BatchResult struct {
	Documents []*bmodel.ExtractedDocument
	Failed    []FailedFile
}

// ExtractBatch 按文件名顺序逐个提取目录下扩展名允许的文件，单个文件失败不影响其余文件。
// 目录不存在时视为空目录。
func (e *Extractor) ExtractBatch(ctx context.Context, dir string) (*BatchResult, error) {
	files, err := e.listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list pdf files in %s: %w", dir, err)
	}
	logger.Infow("Found PDF files", "dir", dir, "count", len(files))

	result := &BatchResult{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		doc, err := e.Extract(ctx, path)
		if err != nil {
			result.Failed = append(result.Failed, FailedFile{Path: path, Code: Errno(err).Code, Error: err.Error()})
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	logger.Infow("Batch extraction completed",
		"successful", len(result.Documents),
		"failed", len(result.Failed),
	)
	return result, nil
}

func (e *Extractor) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !e.allowed(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
