package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// KafkaPublisher envia cada record do escrow para o tópico de transições
type KafkaPublisher struct {
	Writer *kafka.Writer
	Topic  string
}

var _ escrow.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(w *kafka.Writer, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topic: topic}
}

// Publish usa o bet id como chave, mantendo as transições de uma aposta na mesma partição
func (p *KafkaPublisher) Publish(ctx context.Context, r escrow.Record) error {
	e := r.Event()
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(r.BetID, 10)),
		Value: b,
	}
	// writer sem Topic fixo exige o tópico na mensagem
	if p.Writer.Topic == "" {
		msg.Topic = p.Topic
	}
	return p.Writer.WriteMessages(ctx, msg)
}
