// services/result.go
package services

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"cultivation-core/apperr"
)

// Result is the outcome of every core operation. Expected failures are
// reported here with Success=false; the error return is reserved for faults.
type Result[T any] struct {
	Success bool        `json:"success"`
	Code    apperr.Code `json:"code,omitempty"`
	Message string      `json:"message"`
	Data    T           `json:"data,omitempty"`
}

// Ok builds a successful result.
func Ok[T any](message string, data T) Result[T] {
	return Result[T]{Success: true, Message: message, Data: data}
}

// Failure builds a failed result from a domain error.
func Failure[T any](e *apperr.Error) Result[T] {
	return Result[T]{Code: e.Code, Message: e.Message}
}

// settle folds err into the result shape. Domain errors (including
// CONFLICT) become failure results; anything else is a fault and is returned.
func settle[T any](message string, data T, err error) (Result[T], error) {
	if err == nil {
		return Ok(message, data), nil
	}
	if e, ok := apperr.As(err); ok {
		return Failure[T](e), nil
	}
	return Result[T]{Code: apperr.CodeUnknown, Message: "Something went wrong. Please try again later."}, err
}

var tracer = otel.Tracer("cultivation-core/services")

func startSpan(ctx context.Context, name, playerID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if playerID != "" {
		span.SetAttributes(attribute.String("player.id", playerID))
	}
	return ctx, span
}

// finish records the outcome on span and ends it.
func finish[T any](span trace.Span, res Result[T], err error) {
	span.SetAttributes(
		attribute.Bool("result.success", res.Success),
		attribute.String("result.code", string(res.Code)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("❌ [%s] %v", span.SpanContext().SpanID(), err)
	}
	span.End()
}

var printer = message.NewPrinter(language.English)

// amount formats n with thousands separators.
func amount(n int64) string {
	return printer.Sprintf("%d", n)
}
