package services

import (
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

var _ driven.MetricsRecorder = nopMetrics{}

// nopMetrics is used when no recorder is configured.
type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, time.Duration) {}
func (nopMetrics) ObserveCache(string, bool)                      {}
func (nopMetrics) ObserveChunks(int)                              {}
func (nopMetrics) ObserveEvent(string, string)                    {}
