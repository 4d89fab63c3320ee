package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncq/internal/engine"
	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/service"
)

// UserOptions is embedded by commands that act on one user's queue.
type UserOptions struct {
	*RootOptions
	User string
}

func (o *UserOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	UserOptions
	Payload  string
	DeviceID string
	Priority int
	File     string
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{UserOptions: UserOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "enqueue [action]",
		Short: "Queue an action for a user",
		Long: `Queue one action, or a batch read from a JSON file.

The batch file holds an array of {"action", "payload", "deviceId", "priority"}
objects and is queued atomically.

Example:
  syncq enqueue user_preference_update --user user-1 --payload '{"preferences":{"theme":"dark"}}'
  syncq enqueue device_reading --user user-1 --device dev-1 --payload '{"deviceId":"dev-1","reading":{"bpm":72}}'
  syncq enqueue --user user-1 --file actions.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id owning the queue (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "action payload as a JSON object")
	cmd.Flags().StringVar(&opts.DeviceID, "device", "", "device the action concerns")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "priority, higher drains first (default 1)")
	cmd.Flags().StringVar(&opts.File, "file", "", "JSON file with a batch of actions")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runEnqueue(opts *EnqueueOptions, cmd *cobra.Command, args []string) error {
	if opts.File != "" && len(args) > 0 {
		return NewExitError(ExitCommandError, "pass either an action or --file, not both")
	}
	if opts.File == "" && len(args) == 0 {
		return NewExitError(ExitCommandError, "action type is required")
	}

	var (
		single *service.ActionRequest
		batch  []service.ActionRequest
	)
	if opts.File != "" {
		reqs, err := readBatchFile(opts.File)
		if err != nil {
			return err
		}
		batch = reqs
	} else {
		req := service.ActionRequest{Action: args[0], DeviceID: opts.DeviceID, Priority: opts.Priority}
		if opts.Payload != "" {
			payload, err := ir.Decode([]byte(opts.Payload))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --payload", err)
			}
			req.Payload = payload
		}
		single = &req
	}

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	out := opts.formatter(cmd)

	if single != nil {
		res, err := rt.svc.EnqueueAction(ctx, opts.User, *single)
		if err != nil {
			return serviceExitError("enqueue failed", err)
		}
		return out.Success(res, fmt.Sprintf("Queued %s (%s)", res.ActionID, single.Action))
	}

	res, err := rt.svc.EnqueueBatch(ctx, opts.User, batch)
	if err != nil {
		return serviceExitError("enqueue failed", err)
	}
	return out.Success(res, fmt.Sprintf("Queued %d actions: %s", res.QueuedActions, strings.Join(res.ActionIDs, ", ")))
}

func readBatchFile(path string) ([]service.ActionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read batch file", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var reqs []service.ActionRequest
	if err := dec.Decode(&reqs); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid batch file", err)
	}
	for i := range reqs {
		if reqs[i].Payload == nil {
			continue
		}
		norm, err := ir.Normalize(map[string]any(reqs[i].Payload))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid batch file", err)
		}
		reqs[i].Payload = norm.(ir.Document)
	}
	return reqs, nil
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process one batch of a user's pending actions",
		Long: `Claim up to queue.claimLimit pending actions for a user and apply them.

Exits 1 when any action ended failed.

Example:
  syncq drain --user user-1
  syncq drain --user user-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id owning the queue (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runDrain(opts *UserOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.svc.DrainQueue(cmd.Context(), opts.User)
	if err != nil {
		return serviceExitError("drain failed", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Processed %d actions", res.ProcessedActions)
	failed := 0
	for _, r := range res.Results {
		fmt.Fprintf(&text, "\n  %s %s", statusMarker(r.Status), r.ActionID)
		if r.Error != "" {
			fmt.Fprintf(&text, " (%s)", r.Error)
		}
		if r.Status == engine.ResultFailed {
			failed++
		}
	}
	if res.Results == nil {
		res.Results = []engine.ActionResult{}
	}

	if err := opts.formatter(cmd).Success(res, text.String()); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d actions failed", failed))
	}
	return nil
}

// statusView is the JSON shape of the status command.
type statusView struct {
	QueuedActions   int     `json:"queuedActions"`
	FailedActions   int     `json:"failedActions"`
	LastSyncAt      *string `json:"lastSyncAt"`
	LastQueuedAt    *string `json:"lastQueuedAt"`
	SuccessfulSyncs int     `json:"successfulSyncs"`
	FailedSyncs     int     `json:"failedSyncs"`
	ServerTimestamp string  `json:"serverTimestamp"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's sync status",
		Long: `Show queued and failed counts, drain totals and the last sync time.

Example:
  syncq status --user user-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id owning the queue (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runStatus(opts *UserOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	st, err := rt.svc.GetSyncStatus(ctx, opts.User)
	if err != nil {
		return serviceExitError("status failed", err)
	}
	last, err := rt.svc.GetLastSyncTimestamp(ctx, opts.User)
	if err != nil {
		return serviceExitError("status failed", err)
	}

	view := statusView{
		QueuedActions:   st.QueuedActions,
		FailedActions:   st.FailedActions,
		LastSyncAt:      optionalTime(st.LastSyncAt),
		LastQueuedAt:    optionalTime(st.LastQueuedAt),
		SuccessfulSyncs: st.SuccessfulSyncs,
		FailedSyncs:     st.FailedSyncs,
		ServerTimestamp: last.ServerTimestamp.UTC().Format(time.RFC3339),
	}

	lastSync := "never"
	if view.LastSyncAt != nil {
		lastSync = *view.LastSyncAt
	}
	text := fmt.Sprintf(`User:      %s
Queued:    %d
Failed:    %d
Synced:    %d ok, %d failed
Last sync: %s`, opts.User, st.QueuedActions, st.FailedActions, st.SuccessfulSyncs, st.FailedSyncs, lastSync)

	return opts.formatter(cmd).Success(view, text)
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete completed actions past the retention window",
		Long: `Run one retention sweep now. Only completed actions older than
retention.window are deleted, at most retention.limit per run.

Example:
  syncq sweep --db sqlite://syncq.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	return cmd
}

type sweepView struct {
	Cutoff  string `json:"cutoff"`
	Matched int    `json:"matched"`
	Deleted int    `json:"deleted"`
}

func runSweep(opts *UserOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.svc.Sweep(cmd.Context())
	if err != nil {
		return serviceExitError("sweep failed", err)
	}
	view := sweepView{
		Cutoff:  res.Cutoff.UTC().Format(time.RFC3339),
		Matched: res.Matched,
		Deleted: res.Deleted,
	}
	return opts.formatter(cmd).Success(view,
		fmt.Sprintf("Deleted %d completed actions (cutoff %s)", view.Deleted, view.Cutoff))
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount a user's queued actions",
		Long: `Recount pending actions and overwrite the cached queued counter,
which drifts when a counter update is lost.

Example:
  syncq reconcile --user user-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id owning the queue (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runReconcile(opts *UserOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.svc.Reconcile(cmd.Context(), opts.User)
	if err != nil {
		return serviceExitError("reconcile failed", err)
	}
	return opts.formatter(cmd).Success(map[string]int{"queuedActions": n},
		fmt.Sprintf("User %s has %d queued actions", opts.User, n))
}
