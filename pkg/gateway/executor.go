// Copyright 2025 The Switchboard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/switchboard-dev/switchboard/pkg/agent"
	"github.com/switchboard-dev/switchboard/pkg/orchestrator"
)

// Invoker runs one invocation against a named agent. Implemented by
// the orchestrator.
type Invoker interface {
	Invoke(ctx context.Context, agentID, contextID, text string, history []agent.Turn, metadata map[string]any) (*orchestrator.Result, error)
}

// executor bridges one agent's A2A protocol endpoint to the invoker.
//
// Event sequence per request:
//   - new task: TaskStateSubmitted
//   - before invocation: TaskStateWorking
//   - on success: artifact with the reply text, closed with LastChunk,
//     then TaskStateCompleted (final)
//   - on failure: TaskStateFailed (final) carrying the error text
type executor struct {
	agentID string
	invoker Invoker
	logger  *slog.Logger
}

func newExecutor(agentID string, invoker Invoker, logger *slog.Logger) *executor {
	return &executor{agentID: agentID, invoker: invoker, logger: logger}
}

// Execute implements a2asrv.AgentExecutor.
func (e *executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		return fmt.Errorf("message not provided")
	}

	if reqCtx.StoredTask == nil {
		event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)
		if err := queue.Write(ctx, event); err != nil {
			return fmt.Errorf("failed to write submitted event: %w", err)
		}
	}

	working := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)
	if err := queue.Write(ctx, working); err != nil {
		return fmt.Errorf("failed to write working event: %w", err)
	}

	text := messageText(msg)
	e.logger.Debug("protocol invocation",
		"agent_id", e.agentID, "context_id", reqCtx.ContextID, "task_id", string(reqCtx.TaskID))

	result, err := e.invoker.Invoke(ctx, e.agentID, reqCtx.ContextID, text, nil, msg.Metadata)
	if err != nil {
		return writeFailure(ctx, reqCtx, queue, err)
	}

	artifact := a2a.NewArtifactEvent(reqCtx, a2a.TextPart{Text: result.Text})
	if err := queue.Write(ctx, artifact); err != nil {
		return fmt.Errorf("failed to write artifact event: %w", err)
	}

	closing := a2a.NewArtifactUpdateEvent(reqCtx, artifact.Artifact.ID)
	closing.LastChunk = true
	if err := queue.Write(ctx, closing); err != nil {
		return fmt.Errorf("failed to write artifact close event: %w", err)
	}

	completed := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, nil)
	completed.Final = true
	completed.Metadata = result.Metadata
	if err := queue.Write(ctx, completed); err != nil {
		return fmt.Errorf("failed to write completed event: %w", err)
	}
	return nil
}

// Cancel implements a2asrv.AgentExecutor.
func (e *executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func writeFailure(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue, cause error) error {
	msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: cause.Error()})
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateFailed, msg)
	event.Final = true
	if err := queue.Write(ctx, event); err != nil {
		return fmt.Errorf("failed to write failed event: %w (original: %w)", err, cause)
	}
	return nil
}

func messageText(msg *a2a.Message) string {
	var sb strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

var _ a2asrv.AgentExecutor = (*executor)(nil)
