package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CartFox/internal/pkg/jobqueue"
)

// HandleQueueStats exposes queue depth and per-status counters for
// monitoring. Permanently failed jobs showing up here represent
// paid-but-unfulfilled orders and need human attention.
func HandleQueueStats(c *fiber.Ctx) error {
	queue := jobqueue.GetManager().GetQueue()
	ctx := c.Context()

	pending, err := queue.GetQueueSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	retrying, err := queue.GetRetrySize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	deadLetter, err := queue.GetDeadLetterSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}

	return c.JSON(fiber.Map{
		"pending":     pending,
		"processing":  processing,
		"retrying":    retrying,
		"dead_letter": deadLetter,
		"totals":      stats,
	})
}
