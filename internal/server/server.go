// Package server exposes the deck pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"deckflow/internal/model"
	"deckflow/internal/pipeline"
	"deckflow/internal/runstore"
)

// Runner executes a pipeline run.
type Runner interface {
	Run(ctx context.Context, req model.Request) (*model.Result, error)
}

// RunReader loads recorded runs.
type RunReader interface {
	Get(ctx context.Context, id string) (*model.Result, error)
	List(ctx context.Context, limit int) ([]*model.Result, error)
}

// Limits bound the accepted slide count.
type Limits struct {
	MinSlides    int
	MaxSlides    int
	MaxFileBytes int64
}

// Server wires the HTTP routes.
type Server struct {
	runner Runner
	runs   RunReader
	limits Limits
	log    *logrus.Entry
}

func New(runner Runner, runs RunReader, limits Limits) *Server {
	return &Server{runner: runner, runs: runs, limits: limits, log: logrus.WithField("component", "server")}
}

// Router 初始化Gin路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.POST("/decks", s.handleCreateDeck)
	router.GET("/decks", s.handleListDecks)
	router.GET("/decks/:id", s.handleGetDeck)
	router.GET("/decks/:id/artifact", s.handleGetArtifact)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}

// ListenAndServe 启动服务器，ctx取消后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	s.log.Info("服务器已关闭")
	return nil
}

type createDeckRequest struct {
	Task       string `json:"task" form:"task"`
	SlideCount int    `json:"slide_count" form:"slide_count"`
	SourceURL  string `json:"source_url" form:"source_url"`
}

// handleCreateDeck runs the pipeline synchronously. Uploaded files arrive as
// multipart "files" parts; JSON bodies cannot name server paths.
func (s *Server) handleCreateDeck(c *gin.Context) {
	var body createDeckRequest
	var files []string

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		dir, err := os.MkdirTemp("", "deckflow-upload-*")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer os.RemoveAll(dir)
		if files, err = s.saveUploads(c, dir); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}

	if body.SlideCount < s.limits.MinSlides || body.SlideCount > s.limits.MaxSlides {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("slide_count must be between %d and %d", s.limits.MinSlides, s.limits.MaxSlides)})
		return
	}
	if strings.TrimSpace(body.Task) == "" && len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task is required"})
		return
	}
	if body.SourceURL != "" && !strings.HasPrefix(body.SourceURL, "http://") && !strings.HasPrefix(body.SourceURL, "https://") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_url must start with http:// or https://"})
		return
	}

	res, err := s.runner.Run(c.Request.Context(), model.Request{
		Task:       body.Task,
		SlideCount: body.SlideCount,
		Files:      files,
		SourceURL:  body.SourceURL,
	})
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) saveUploads(c *gin.Context, dir string) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	var paths []string
	for i, fh := range form.File["files"] {
		dst := filepath.Join(dir, strconv.Itoa(i)+"_"+filepath.Base(fh.Filename))
		if s.limits.MaxFileBytes > 0 && fh.Size > s.limits.MaxFileBytes {
			// The file provider reports oversized files as not included;
			// a sparse placeholder of the same size is enough for that.
			s.log.WithFields(logrus.Fields{"file": fh.Filename, "size": fh.Size}).Warn("上传文件过大，跳过内容")
			if err := placeholder(dst, fh.Size); err != nil {
				return nil, err
			}
		} else if err := c.SaveUploadedFile(fh, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func placeholder(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Server) handleListDecks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := s.runs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetDeck(c *gin.Context) {
	res, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, runstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetArtifact(c *gin.Context) {
	res, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, runstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res.ArtifactPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "run has no exported artifact", "status": res.Status})
		return
	}
	if _, err := os.Stat(res.ArtifactPath); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "artifact no longer on disk"})
		return
	}
	c.FileAttachment(res.ArtifactPath, filepath.Base(res.ArtifactPath))
}
