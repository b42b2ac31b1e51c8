package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"osp/internal/model"
)

func main() {
	var (
		count      int
		ratePerSec int
		sink       string
		outputFile string
		bootstrap  string
		topic      string
	)
	flag.IntVar(&count, "count", 100, "number of orders to generate")
	flag.IntVar(&ratePerSec, "rate", 10, "orders per second (0 = unthrottled)")
	flag.StringVar(&sink, "sink", "file", "file|kafka")
	flag.StringVar(&outputFile, "output", "orders.jsonl", "output file for file sink")
	flag.StringVar(&bootstrap, "bootstrap", "localhost:9092", "kafka bootstrap servers")
	flag.StringVar(&topic, "topic", "orders", "orders topic")
	flag.Parse()

	if err := generate(count, ratePerSec, sink, outputFile, bootstrap, topic); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(count, ratePerSec int, sink, outputFile, bootstrap, topic string) error {
	emit, closeFn, err := newSink(sink, outputFile, bootstrap, topic)
	if err != nil {
		return err
	}
	defer closeFn()

	var ticker *time.Ticker
	if ratePerSec > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(ratePerSec))
		defer ticker.Stop()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < count; i++ {
		if ticker != nil {
			<-ticker.C
		}
		o := randomOrder(rng, i)
		if err := emit(o); err != nil {
			return fmt.Errorf("emit order %d: %w", i+1, err)
		}
	}
	log.Printf("generated %d orders via %s sink", count, sink)
	return nil
}

func randomOrder(rng *rand.Rand, i int) model.Order {
	products := []string{"P1", "P2", "P3", "P4", "P5"}
	qty := int64(1 + rng.Intn(8))
	price := float64(100+rng.Intn(9900)) / 100.0
	o := model.Order{
		OrderID:    fmt.Sprintf("O%d-%d", time.Now().Unix(), i+1),
		CustomerID: int64(1 + rng.Intn(50)),
		ProductID:  products[rng.Intn(len(products))],
		Quantity:   qty,
		UnitPrice:  price,
		Total:      float64(qty) * price,
		Timestamp:  time.Now().UTC().UnixMilli(),
		Status:     model.StatusPending,
	}
	// A small fraction of deliberately bad orders exercises the rule set.
	if rng.Intn(20) == 0 {
		o.Quantity = 2000
		o.Total = float64(o.Quantity) * o.UnitPrice
	}
	return o
}

func newSink(sink, outputFile, bootstrap, topic string) (func(model.Order) error, func(), error) {
	switch sink {
	case "kafka":
		addrs := strings.Split(bootstrap, ",")
		var brokers []string
		for _, a := range addrs {
			if a = strings.TrimSpace(a); a != "" {
				brokers = append(brokers, a)
			}
		}
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		}
		emit := func(o model.Order) error {
			b, err := json.Marshal(&o)
			if err != nil {
				return err
			}
			return w.WriteMessages(context.Background(), kafka.Message{Key: []byte(o.OrderID), Value: b})
		}
		return emit, func() { _ = w.Close() }, nil
	default:
		file, err := os.Create(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create file: %w", err)
		}
		enc := json.NewEncoder(file)
		emit := func(o model.Order) error { return enc.Encode(&o) }
		return emit, func() { _ = file.Close() }, nil
	}
}
