package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	cmdq "github.com/coffyg/cmdq"
	"github.com/rs/zerolog"
)

// drawCommand simulates a render command with a small fixed cost
type drawCommand struct {
	name     string
	kind     cmdq.CommandType
	priority cmdq.Priority
	work     time.Duration
	executed *atomic.Int64
}

func (c *drawCommand) Execute(ctx cmdq.ExecutionContext) error {
	if c.work > 0 {
		time.Sleep(c.work)
	}
	c.executed.Add(1)
	return nil
}

func (c *drawCommand) GetType() cmdq.CommandType  { return c.kind }
func (c *drawCommand) GetPriority() cmdq.Priority { return c.priority }
func (c *drawCommand) GetName() string            { return c.name }
func (c *drawCommand) CanBatch() bool             { return true }
func (c *drawCommand) GetEstimatedCost() uint64   { return 1 }

// fakeDevice stands in for the graphics backend context
type fakeDevice struct {
	name string
}

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.InfoLevel)

	cfg := cmdq.QueueConfig{
		Capacity:              4096,
		MaxCommandsPerFrame:   512,
		EnablePrioritySorting: true,
		EnableBatching:        true,
		EnableStatistics:      true,
		EnableDebugMarkers:    true,
		WorkerCount:           runtime.NumCPU(),
	}

	queue, err := cmdq.NewCommandQueue(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create command queue")
	}
	queue.SetDebugCallback(func(msg string) {
		logger.Debug().Msg("[marker] " + msg)
	})

	executor := cmdq.NewCommandExecutor(queue, &logger)
	device := &fakeDevice{name: "demo-device"}
	if err := executor.Start(device); err != nil {
		logger.Fatal().Err(err).Msg("failed to start executor")
	}

	var executed atomic.Int64
	kinds := []cmdq.CommandType{cmdq.CommandTypeClear, cmdq.CommandTypeDraw, cmdq.CommandTypeCopy}
	priorities := []cmdq.Priority{cmdq.PriorityLow, cmdq.PriorityNormal, cmdq.PriorityHigh, cmdq.PriorityCritical}

	fmt.Println("Running 120 simulated frames...")
	start := time.Now()
	dropped := 0
	for frame := 0; frame < 120; frame++ {
		queue.BeginFrame()
		queue.PushDebugGroup(fmt.Sprintf("frame-%d", frame))

		commands := 200 + rand.Intn(200)
		for i := 0; i < commands; i++ {
			cmd := &drawCommand{
				name:     fmt.Sprintf("cmd-%d-%d", frame, i),
				kind:     kinds[rand.Intn(len(kinds))],
				priority: priorities[rand.Intn(len(priorities))],
				executed: &executed,
			}
			if !queue.SubmitWithPriority(cmd, cmd.GetPriority()) {
				dropped++
			}
		}

		queue.PopDebugGroup()
		queue.EndFrame()
		time.Sleep(2 * time.Millisecond) // ~500fps submission cadence
	}

	executor.WaitForCompletion()
	executor.Stop()
	elapsed := time.Since(start)

	stats := queue.GetStats()
	execStats := executor.Stats()
	fmt.Printf("\n=== Results (%s) ===\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Submitted:  %d\n", stats.Submitted)
	fmt.Printf("Executed:   %d (%d observed by commands)\n", stats.Executed, executed.Load())
	fmt.Printf("Dropped:    %d (rejected at submit: %d)\n", stats.Dropped, dropped)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Max depth:  %d / %d\n", stats.MaxQueueSize, queue.Cap())
	fmt.Printf("Avg exec:   %s\n", stats.AverageExecTime)
	fmt.Printf("Frames:     %d (avg %s, min %s, max %s)\n",
		stats.FrameCount, stats.AverageFrameTime, stats.MinFrameTime, stats.MaxFrameTime)
	fmt.Printf("Workers:    %d, batches drained: %d\n", execStats.Workers, execStats.BatchesDrained)
}
