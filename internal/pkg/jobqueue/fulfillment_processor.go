package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CartFox/internal/pkg/database"
	"github.com/ManuelReschke/CartFox/internal/pkg/fulfillment"
	metrics "github.com/ManuelReschke/CartFox/internal/pkg/metrics/counter"
)

// processFulfillWebhookJob hands a queued webhook event to the fulfillment
// service. Any returned error feeds the queue's retry/backoff policy; a nil
// return acknowledges the job even when the event turned out to be a
// duplicate or a non-fulfillment type.
func (q *Queue) processFulfillWebhookJob(ctx context.Context, job *Job) error {
	payload, err := FulfillWebhookJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid fulfill_webhook payload: %w", err)
	}

	svc := fulfillment.NewService(database.GetDB())
	outcome, err := svc.Process(ctx, fulfillment.JobInput{
		Provider:  payload.Provider,
		EventID:   payload.EventID,
		EventType: payload.EventType,
		Payload:   []byte(payload.RawPayload),
		Signature: payload.Signature,
	})
	if err != nil {
		_ = metrics.AddWebhookFailed(payload.Provider)
		return err
	}

	switch outcome {
	case fulfillment.OutcomeFulfilled:
		_ = metrics.AddWebhookFulfilled(payload.Provider)
	case fulfillment.OutcomeDuplicate:
		_ = metrics.AddWebhookDuplicate(payload.Provider)
	}
	log.Debugf("[JobQueue] Fulfillment job %s finished with outcome %s", job.ID, outcome)
	return nil
}
