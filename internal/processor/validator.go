package processor

import (
	"context"
	"encoding/json"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"osp/internal/aggregate"
	"osp/internal/command"
	"osp/internal/model"
	"osp/internal/validate"
)

// routeValidator dispatches a record by topic: orders-topic records are
// validated and conditionally forwarded; registry-topic records are the
// validator's own forwarded envelopes coming back for the actual persistence
// step. Deciding and recording are deliberately decoupled through the broker.
func (p *Processor) routeValidator(ctx context.Context, msg *ck.Message) {
	topic := ""
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}
	switch topic {
	case p.cfg.RegistryTopic:
		p.handleRegistryRecord(ctx, msg)
	default:
		p.handleOrderRecord(msg)
	}
}

func (p *Processor) handleOrderRecord(msg *ck.Message) {
	o, err := model.DecodeOrder(msg.Value)
	if err != nil {
		p.countError()
		p.m.Errors.Inc()
		p.log.Warn("malformed order record", zap.Error(err))
		return
	}

	verdict := validate.Validate(o)
	p.countProcessed()
	p.m.Processed.Inc()

	if !verdict.Passed {
		// A failed rule is a normal outcome, not an error. Rejected orders
		// never reach the registry topic.
		p.m.ValidationFailed.Inc()
		p.log.Info("order rejected",
			zap.String("order_id", o.OrderID),
			zap.Strings("failed_rules", validate.FailedRules(verdict)))
		return
	}
	p.m.ValidationPassed.Inc()

	env := model.Envelope{Order: o, Result: verdict, Timestamp: time.Now().UTC().UnixMilli()}
	b, err := json.Marshal(&env)
	if err != nil {
		p.countError()
		p.m.Errors.Inc()
		p.log.Warn("envelope encode failed", zap.String("order_id", o.OrderID), zap.Error(err))
		return
	}
	// Opaque carries the source offset into the delivery report, so a failed
	// delivery can rewind the consumer to the record that produced it.
	err = p.producer.Produce(&ck.Message{
		TopicPartition: ck.TopicPartition{Topic: &p.cfg.RegistryTopic, Partition: ck.PartitionAny},
		Key:            []byte(o.OrderID),
		Value:          b,
		Opaque:         msg.TopicPartition,
	}, nil)
	if err != nil {
		p.countError()
		p.m.Errors.Inc()
		p.holdOffset(msg.TopicPartition)
		p.log.Warn("forward to registry topic failed", zap.String("order_id", o.OrderID), zap.Error(err))
		return
	}
	p.inflight.Add(1)
	p.m.Forwarded.Inc()
}

func (p *Processor) handleRegistryRecord(ctx context.Context, msg *ck.Message) {
	envl, err := model.DecodeEnvelope(msg.Value)
	if err != nil {
		p.countError()
		p.m.Errors.Inc()
		p.log.Warn("malformed registry record", zap.Error(err))
		return
	}
	res := command.Execute(ctx, p.env, command.Command{Op: command.OpRegister, Envelope: &envl})
	switch {
	case !res.Success:
		p.countError()
		p.m.Errors.Inc()
		if res.Panicked {
			// A panic is treated as a poison record: replaying it would
			// panic again forever, so it is logged loudly and skipped.
			p.log.Error("register command panicked",
				zap.String("order_id", envl.Order.OrderID),
				zap.String("error", res.Error))
			return
		}
		// A store failure is transient: hold this offset so the next commit
		// seeks back here and the envelope is registered on replay.
		p.holdOffset(msg.TopicPartition)
		p.log.Warn("register failed, offset held for replay",
			zap.String("order_id", envl.Order.OrderID),
			zap.String("error", res.Error))
	case res.Skipped:
		p.m.RegistrySkipped.Inc()
	default:
		if ro, ok := res.Data.(model.RegisteredOrder); ok && ro.Version > 1 {
			p.m.RegistryUpdated.Inc()
		} else {
			p.m.Registered.Inc()
		}
	}
}

func (p *Processor) countProcessed() {
	p.env.Views.Update(func(v aggregate.Views) aggregate.Views {
		next := v.Clone()
		next.Stats.ProcessedCount++
		next.Stats.LastProcessedTimestamp = time.Now().UTC().UnixMilli()
		return next
	})
}

func (p *Processor) countError() {
	p.env.Views.Update(func(v aggregate.Views) aggregate.Views {
		next := v.Clone()
		next.Stats.ErrorCount++
		return next
	})
}
