package async

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive  int     `json:"workers_active"`  // Workers currently inside a drain
	WorkersTotal   int     `json:"workers_total"`   // Total configured workers
	MemoryUsedGB   float64 `json:"memory_used_gb"`  // Current memory usage in GB
	MemoryTotalGB  float64 `json:"memory_total_gb"` // Total system memory in GB
	MemoryPercent  float64 `json:"memory_percent"`  // Memory utilization percentage
	JobsPending    int     `json:"jobs_pending"`    // Jobs waiting in queue
	JobsGenerating int     `json:"jobs_generating"` // Jobs currently executing
}

// getMemoryStats returns total and available memory in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read virtual memory: %w", err)
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for the available memory.
// Each worker holds up to a few decoded images plus the face reference in memory.
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryPerWorker = 0.5 // GB per concurrent pipeline
	const memoryBuffer = 1.0    // GB reserved for the rest of the system

	if availableGB < memoryBuffer {
		return 1 // Always allow at least 1 worker
	}

	recommended := int((availableGB - memoryBuffer) / memoryPerWorker)
	if recommended < 1 {
		return 1
	}
	if recommended > 16 {
		return 16
	}
	return recommended
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics(ctx context.Context) SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	var pending, generating int
	if stats, err := wp.GetQueue().GetStats(ctx); err == nil {
		pending, generating = stats.Pending, stats.Generating
	}

	wp.mu.Lock()
	activeWorkers := wp.activeWorkers
	workers := wp.config.Workers
	wp.mu.Unlock()

	return SystemMetrics{
		WorkersActive:  activeWorkers,
		WorkersTotal:   workers,
		MemoryUsedGB:   memUsedGB,
		MemoryTotalGB:  memTotalGB,
		MemoryPercent:  memPercent,
		JobsPending:    pending,
		JobsGenerating: generating,
	}
}

// checkMemoryPressure validates worker count against available memory
// Returns warning message if worker count may be too high, empty string if OK
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB)

	workers := wp.Workers()
	if workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
				"Consider reducing workers to prevent memory pressure.",
			workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
