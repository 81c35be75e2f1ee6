package pipeline

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"deckflow/internal/export"
	"deckflow/internal/model"
	"deckflow/internal/store"
)

// Stage names a pipeline step.
type Stage string

const (
	StageProvide Stage = "content_provider"
	StageOutline Stage = "outline_builder"
	StageRender  Stage = "slide_renderer"
	StageExport  Stage = "artifact_exporter"
	StagePublish Stage = "publish"
)

// ErrInvalidRequest is returned before any stage runs.
var ErrInvalidRequest = errors.New("invalid pipeline request")

// StageError reports the stage that ended a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// State 流水线状态，每个阶段只写自己负责的字段
type State struct {
	RunID   string
	Request model.Request

	Material *model.SourceMaterial // content provider
	Outline  *model.Outline        // outline builder
	Slides   []model.RenderedSlide // slide renderer
	Skipped  []int                 // slide renderer

	Export    *export.Report // exporter
	ExportErr error
	Artifact  string

	// Fatal is set by the stage that aborted the run.
	Fatal *StageError

	store *store.Store
	log   *logrus.Entry
}

func (s *State) fail(stage Stage, err error) error {
	s.Fatal = &StageError{Stage: stage, Err: err}
	s.log.WithField("stage", stage).WithError(err).Error("stage failed, aborting run")
	return s.Fatal
}
