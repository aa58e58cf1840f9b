package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/arbiter"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/logging"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/mqtt"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/override"
)

// signalQoS is the QoS level for inbound signal subscriptions.
// At-least-once: a duplicate raise or clear is idempotent.
const signalQoS = 1

// signalMessage is the wire payload on safety and e-stop topics.
// Action "raise" (the default) asserts the signal; "clear" withdraws it.
type signalMessage struct {
	Action    string  `json:"action,omitempty"`
	Parameter string  `json:"parameter,omitempty"` // empty = scope-wide
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Reason    string  `json:"reason"`
	Source    string  `json:"source"`
}

// directiveMessage is the wire payload on demand-response topics.
// Action "accept" (the default) lands a directive; "withdraw" removes
// the directive named by ID.
type directiveMessage struct {
	Action    string    `json:"action,omitempty"`
	ID        string    `json:"id,omitempty"` // withdraw only
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
}

// subscribeSignals wires the inbound MQTT signal topics to the signal
// boards and the arbitration engine.
//
// Safety and e-stop arrivals block any active overrides on the scope
// before re-resolution, so the interlock wins the very tick it lands.
func subscribeSignals(ctx context.Context, client *mqtt.Client, safety, estop *arbiter.SignalBoard, dr *arbiter.DirectiveBoard, overrides *override.Manager, engine *arbiter.Engine, log *logging.Logger) error {
	topics := mqtt.Topics{}

	if err := client.Subscribe(topics.AllSafetySignals(), signalQoS, signalHandler(ctx, safety, "safety interlock", overrides, engine, log)); err != nil {
		return fmt.Errorf("safety signals: %w", err)
	}
	if err := client.Subscribe(topics.AllEStopSignals(), signalQoS, signalHandler(ctx, estop, "emergency stop", overrides, engine, log)); err != nil {
		return fmt.Errorf("e-stop signals: %w", err)
	}
	if err := client.Subscribe(topics.AllDemandResponse(), signalQoS, directiveHandler(ctx, dr, engine, log)); err != nil {
		return fmt.Errorf("demand-response directives: %w", err)
	}

	log.Info("signal subscriptions established",
		"safety", topics.AllSafetySignals(),
		"estop", topics.AllEStopSignals(),
		"dr", topics.AllDemandResponse(),
	)
	return nil
}

// signalHandler returns an MQTT handler that raises or clears signals
// on the given board.
func signalHandler(ctx context.Context, board *arbiter.SignalBoard, kind string, overrides *override.Manager, engine *arbiter.Engine, log *logging.Logger) func(string, []byte) error {
	return func(topic string, payload []byte) error {
		scope, err := scopeFromTopic(topic)
		if err != nil {
			log.Warn("unparseable signal topic", "topic", topic, "error", err)
			return nil
		}

		var msg signalMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn("unparseable signal payload", "topic", topic, "error", err)
			return nil
		}

		if msg.Action == "clear" {
			if err := board.Clear(scope, control.Parameter(msg.Parameter)); err != nil {
				log.Debug("signal clear ignored", "scope", scope.Key(), "error", err)
				return nil
			}
			log.Info("signal cleared", "kind", kind, "scope", scope.Key(), "parameter", msg.Parameter)
			engine.ResolveScope(ctx, scope)
			return nil
		}

		if err := board.Raise(arbiter.Signal{
			Scope:     scope,
			Parameter: control.Parameter(msg.Parameter),
			Value:     msg.Value,
			Unit:      msg.Unit,
			Reason:    msg.Reason,
			Source:    msg.Source,
		}); err != nil {
			log.Warn("signal rejected", "topic", topic, "error", err)
			return nil
		}
		log.Info("signal raised", "kind", kind, "scope", scope.Key(), "parameter", msg.Parameter, "reason", msg.Reason)

		// Signal arrival blocks the active overrides it covers: the
		// whole scope for a scope-wide signal, the one pair otherwise.
		if blocked, blockErr := overrides.BlockScope(ctx, scope, control.Parameter(msg.Parameter), kind+": "+msg.Reason); blockErr != nil {
			log.Error("failed to block overrides on signal", "scope", scope.Key(), "error", blockErr)
		} else if blocked > 0 {
			log.Info("overrides blocked by signal", "scope", scope.Key(), "count", blocked)
		}

		engine.ResolveScope(ctx, scope)
		return nil
	}
}

// directiveHandler returns an MQTT handler for demand-response
// directives.
func directiveHandler(ctx context.Context, dr *arbiter.DirectiveBoard, engine *arbiter.Engine, log *logging.Logger) func(string, []byte) error {
	return func(topic string, payload []byte) error {
		scope, err := scopeFromTopic(topic)
		if err != nil {
			log.Warn("unparseable directive topic", "topic", topic, "error", err)
			return nil
		}

		var msg directiveMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn("unparseable directive payload", "topic", topic, "error", err)
			return nil
		}

		if msg.Action == "withdraw" {
			if err := dr.Withdraw(msg.ID); err != nil {
				log.Debug("directive withdraw ignored", "id", msg.ID, "error", err)
				return nil
			}
			log.Info("directive withdrawn", "id", msg.ID, "scope", scope.Key())
			engine.ResolveScope(ctx, scope)
			return nil
		}

		d, err := dr.Accept(arbiter.Directive{
			Scope:     scope,
			Parameter: control.Parameter(msg.Parameter),
			Value:     msg.Value,
			Unit:      msg.Unit,
			NotBefore: msg.NotBefore,
			NotAfter:  msg.NotAfter,
			Reason:    msg.Reason,
			Actor:     msg.Actor,
		})
		if err != nil {
			log.Warn("directive rejected", "topic", topic, "error", err)
			return nil
		}
		log.Info("directive accepted", "id", d.ID, "scope", scope.Key(), "parameter", msg.Parameter)

		engine.ResolveEffective(ctx, d.Scope, d.Parameter)
		return nil
	}
}

// scopeFromTopic extracts the scope from the last two segments of a
// signal topic, e.g. "trazo/signal/safety/pod/pod-a".
func scopeFromTopic(topic string) (control.Scope, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return control.Scope{}, fmt.Errorf("topic %q: too few segments", topic)
	}
	scope := control.Scope{
		Kind: control.ScopeKind(parts[len(parts)-2]),
		ID:   parts[len(parts)-1],
	}
	if !scope.Valid() {
		return control.Scope{}, fmt.Errorf("topic %q: invalid scope", topic)
	}
	return scope, nil
}
