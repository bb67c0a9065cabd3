package workflow

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/otelhelper"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/flowforge/flowforge/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// frame is the loop iteration a body node runs in.
type frame struct {
	item  any
	index int
}

// walker holds the state of one pass over an execution graph.
type walker struct {
	rt          *Runtime
	g           *graph
	execution   *models.Execution
	triggerData map[string]any
	creds       protocol.CredentialSource
	logger      *slog.Logger

	results        map[string]any
	order          int
	completed      int
	executed       map[string]bool
	skipCandidates []string
	abortErr       error
}

func newWalker(rt *Runtime, wf *models.Workflow, execution *models.Execution, triggerData map[string]any, userID string, lastOrder int, logger *slog.Logger) *walker {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	return &walker{
		rt:          rt,
		g:           newGraph(wf),
		execution:   execution,
		triggerData: triggerData,
		creds:       &credentialSource{integrations: rt.store, decrypter: rt.decrypter, userID: userID},
		logger:      logger,
		results:     make(map[string]any),
		order:       lastOrder,
		executed:    make(map[string]bool),
	}
}

func (w *walker) run(ctx context.Context) {
	visited := make(map[string]bool)

	var queue []string

	for _, node := range w.g.nodes {
		if node.Kind != models.NodeKindTrigger || visited[node.ID] {
			continue
		}

		visited[node.ID] = true

		if err := w.recordTrigger(ctx, node); err != nil {
			w.abortErr = err

			return
		}

		queue = append(queue, w.follow(node.ID, func(*models.Edge) bool { return true })...)
	}

	w.walk(ctx, queue, visited, nil)

	if ctx.Err() == nil && (w.abortErr == nil || !failures.IsRetryable(w.abortErr)) {
		w.markSkipped(ctx)
	}
}

// walk visits queued nodes in FIFO order until the queue drains or the run aborts.
func (w *walker) walk(ctx context.Context, queue []string, visited map[string]bool, f *frame) {
	for len(queue) > 0 && w.abortErr == nil {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		visited[id] = true

		node, ok := w.g.node(id)
		if !ok || node.Kind == models.NodeKindTrigger {
			continue
		}

		if err := ctx.Err(); err != nil {
			w.abortErr = err

			return
		}

		queue = append(queue, w.visit(ctx, node, visited, f)...)
	}
}

// visit runs one node and returns the targets to enqueue next.
func (w *walker) visit(ctx context.Context, node *models.Node, visited map[string]bool, f *frame) []string {
	if node.Kind == models.NodeKindLoop {
		return w.visitLoop(ctx, node, visited, f)
	}

	output, err := w.execute(ctx, node, f)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			w.abortErr = ctxErr

			return nil
		}

		switch node.Kind {
		case models.NodeKindCondition, models.NodeKindDelay:
			w.logger.WarnContext(ctx, "Branch stopped", "node_id", node.ID, "error", err)
			w.follow(node.ID, func(*models.Edge) bool { return false })

			return nil
		default:
			w.abortErr = err

			return nil
		}
	}

	if node.Kind == models.NodeKindCondition {
		branch, _ := output["branch"].(string)

		return w.follow(node.ID, func(e *models.Edge) bool { return e.SourceHandle == branch })
	}

	return w.follow(node.ID, func(*models.Edge) bool { return true })
}

// visitLoop runs the loop body once per item. Body nodes run sequentially with their own
// visited set, so each iteration sees every body node exactly once.
func (w *walker) visitLoop(ctx context.Context, node *models.Node, visited map[string]bool, f *frame) []string {
	ctx, span := w.startSpan(ctx, node)
	defer span.End()

	step, config, err := w.begin(ctx, node, f)
	if err != nil {
		w.abortErr = err

		return nil
	}

	output, err := w.invoke(ctx, node, config, f)
	if err != nil {
		otelhelper.SetError(span, err)
		w.finish(ctx, step, nil, err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		w.abortErr = err

		return nil
	}

	items, _ := output["items"].([]any)
	truncated := false

	if len(items) > w.rt.maxLoopIterations {
		w.logger.WarnContext(ctx, "Loop truncated", "node_id", node.ID, "items", len(items), "max", w.rt.maxLoopIterations)
		items = items[:w.rt.maxLoopIterations]
		truncated = true
	}

	var body []string

	for _, edge := range w.g.edgesFrom(node.ID) {
		if edge.SourceHandle == models.HandleBody {
			body = append(body, edge.Target)
		}
	}

	w.results[node.ID] = map[string]any{"items": items, "count": len(items)}
	iterations := make([]any, 0, len(items))

	for i, item := range items {
		if w.abortErr != nil {
			break
		}

		seen := map[string]bool{node.ID: true}
		w.walk(ctx, slices.Clone(body), seen, &frame{item: item, index: i})

		outputs := make(map[string]any)

		for id := range seen {
			visited[id] = true

			if id == node.ID {
				continue
			}

			if out, ok := w.results[id]; ok {
				outputs[id] = out
			}
		}

		iterations = append(iterations, map[string]any{"index": i, "item": item, "outputs": outputs})
	}

	loopOutput := map[string]any{
		"items":      items,
		"count":      len(items),
		"iterations": iterations,
		"truncated":  truncated,
	}

	if w.abortErr != nil {
		otelhelper.SetError(span, w.abortErr)
		w.finish(ctx, step, nil, w.abortErr)

		return nil
	}

	w.finish(ctx, step, loopOutput, nil)

	return w.follow(node.ID, func(e *models.Edge) bool { return e.SourceHandle != models.HandleBody })
}

// follow returns the targets of taken edges and remembers the others as skip candidates.
func (w *walker) follow(id string, take func(*models.Edge) bool) []string {
	var next []string

	for _, edge := range w.g.edgesFrom(id) {
		if take(edge) {
			next = append(next, edge.Target)
		} else {
			w.skipCandidates = append(w.skipCandidates, edge.Target)
		}
	}

	return next
}

func (w *walker) execute(ctx context.Context, node *models.Node, f *frame) (map[string]any, error) {
	ctx, span := w.startSpan(ctx, node)
	defer span.End()

	step, config, err := w.begin(ctx, node, f)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	output, err := w.invoke(ctx, node, config, f)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "Node failed", "node_id", node.ID, "node_type", node.Type(), "error", err)
	}

	w.finish(ctx, step, output, err)

	return output, err
}

func (w *walker) startSpan(ctx context.Context, node *models.Node) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, w.rt.tracer, "workflow.step",
		attribute.String(otelhelper.ExecutionIDKey, w.execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type()),
	)
}

// begin resolves the node config and records a running step before the adapter is called.
func (w *walker) begin(ctx context.Context, node *models.Node, f *frame) (*models.ExecutionStep, map[string]any, error) {
	scope := template.Scope{Trigger: w.triggerData, Results: w.results}
	if f != nil {
		scope.Item = f.item
		scope.Index = f.index
		scope.InLoop = true
	}

	config := template.ResolveMap(node.Config, scope)
	now := w.rt.now().UTC()

	step := w.newStep(node, models.StepStatusRunning, f)
	step.Input = summarize(config)
	step.StartedAt = &now

	if err := w.rt.store.CreateStep(ctx, step); err != nil {
		return nil, nil, failures.Wrap(failures.KindTransient, "record step", err)
	}

	w.executed[node.ID] = true

	return step, config, nil
}

func (w *walker) invoke(ctx context.Context, node *models.Node, config map[string]any, f *frame) (map[string]any, error) {
	nodeType := node.Type()

	adapter, ok := w.rt.registry.Adapter(nodeType)
	if !ok {
		return nil, failures.Newf(failures.KindConfiguration, node.ID, "unknown node type %q", nodeType)
	}

	if err := w.rt.registry.Validate(nodeType, config); err != nil {
		return nil, unresolvedError(nodeType, config, err)
	}

	in := protocol.Input{
		WorkflowID:  w.execution.WorkflowID,
		ExecutionID: w.execution.ID,
		NodeID:      node.ID,
		Config:      config,
		TriggerData: w.triggerData,
		Results:     w.results,
		Credentials: w.creds,
		Logger:      w.logger.With("node_id", node.ID, "node_type", nodeType),
	}

	if f != nil {
		in.Item = f.item
		in.Index = f.index
	}

	output, err := safeExecute(ctx, adapter, in)
	if err != nil {
		return nil, unresolvedError(nodeType, config, err)
	}

	if output == nil {
		output = map[string]any{}
	}

	return output, nil
}

// safeExecute turns an adapter panic into a fatal failure so the step is still finished.
func safeExecute(ctx context.Context, adapter protocol.Adapter, in protocol.Input) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = failures.Newf(failures.KindFatal, adapter.Type(), "adapter panicked: %v", r)
		}
	}()

	return adapter.Execute(ctx, in)
}

// unresolvedError reports a failure on a config that still holds placeholders as a data
// error naming them, since the missing value is the likely cause.
func unresolvedError(nodeType string, config map[string]any, err error) error {
	if failures.IsRetryable(err) || errors.Is(err, context.Canceled) {
		return err
	}

	refs := dedupe(template.Unresolved(config))
	if len(refs) == 0 {
		return err
	}

	return &failures.Error{
		Kind:    failures.KindData,
		Op:      nodeType,
		Message: "unresolved variable " + strings.Join(refs, ", "),
		Err:     err,
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]

	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	return out
}

// finish completes or fails a step. Writes outlive ctx so an interrupted node still
// leaves its record.
func (w *walker) finish(ctx context.Context, step *models.ExecutionStep, output map[string]any, err error) {
	now := w.rt.now().UTC()
	step.CompletedAt = &now

	if step.StartedAt != nil {
		step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
	}

	if err != nil {
		message := err.Error()
		step.Status = models.StepStatusFailed
		step.Error = &message
		step.ErrorDetail = errorDetail(message)
	} else {
		step.Status = models.StepStatusCompleted
		step.Output = summarize(output)
		w.results[step.NodeID] = output
		w.completed++
	}

	if uerr := w.rt.store.UpdateStep(context.WithoutCancel(ctx), step); uerr != nil {
		w.logger.ErrorContext(ctx, "Failed to record step", "node_id", step.NodeID, "error", uerr)

		if w.abortErr == nil {
			w.abortErr = failures.Wrap(failures.KindTransient, "record step", uerr)
		}
	}
}

// recordTrigger stores the trigger payload as the trigger node's output.
func (w *walker) recordTrigger(ctx context.Context, node *models.Node) error {
	now := w.rt.now().UTC()
	output := maps.Clone(w.triggerData)

	step := w.newStep(node, models.StepStatusCompleted, nil)
	step.Output = summarize(output)
	step.StartedAt = &now
	step.CompletedAt = &now

	if err := w.rt.store.CreateStep(ctx, step); err != nil {
		return failures.Wrap(failures.KindTransient, "record step", err)
	}

	w.executed[node.ID] = true
	w.results[node.ID] = output
	w.completed++

	return nil
}

// markSkipped records a skipped step for every node downstream of an untaken edge that
// never ran.
func (w *walker) markSkipped(ctx context.Context) {
	queue := w.skipCandidates
	seen := make(map[string]bool)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if w.executed[id] || seen[id] {
			continue
		}

		seen[id] = true

		node, ok := w.g.node(id)
		if !ok || node.Kind == models.NodeKindTrigger {
			continue
		}

		if err := w.rt.store.CreateStep(ctx, w.newStep(node, models.StepStatusSkipped, nil)); err != nil {
			w.logger.ErrorContext(ctx, "Failed to record skipped step", "node_id", id, "error", err)
		}

		for _, edge := range w.g.edgesFrom(id) {
			queue = append(queue, edge.Target)
		}
	}
}

func (w *walker) newStep(node *models.Node, status models.StepStatus, f *frame) *models.ExecutionStep {
	w.order++

	step := &models.ExecutionStep{
		ID:          uuid.Must(uuid.NewV7()).String(),
		ExecutionID: w.execution.ID,
		NodeID:      node.ID,
		Name:        node.Name,
		Type:        node.Type(),
		Status:      status,
		StepOrder:   w.order,
	}

	if f != nil {
		index := f.index
		step.Iteration = &index
	}

	return step
}
