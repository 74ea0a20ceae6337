package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/session"
)

// Reward outcomes. An empty Outcome is treated as approved.
const (
	RewardOutcomeApproved  = "approved"
	RewardOutcomeCancelled = "cancelled"
)

// QuestRewardArgs settles a quest on the assignee's ledger: an approved quest
// confirms the staged earnings, a cancelled one releases them.
type QuestRewardArgs struct {
	TaskID      string `json:"task_id"`
	UserID      string `json:"user_id"`
	Outcome     string `json:"outcome"`
	Points      int    `json:"points"`
	AmountCents int64  `json:"amount_cents"`
}

func (QuestRewardArgs) Kind() string { return "quest_reward" }

// InsertOpts makes a second job with the same quest and outcome collapse into
// the already queued one.
func (QuestRewardArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// Ledger is the part of the reward ledger the worker needs.
type Ledger interface {
	SettleReward(ctx context.Context, points int, amount models.Cents) error
	ReleasePending(ctx context.Context, amount models.Cents) error
}

// EnqueueRewardFunc inserts a reward job. main wires it to the River client.
type EnqueueRewardFunc func(ctx context.Context, args QuestRewardArgs) error

type QuestRewardWorker struct {
	river.WorkerDefaults[QuestRewardArgs]
	ledger Ledger
	log    *slog.Logger
}

func NewQuestRewardWorker(l Ledger, log *slog.Logger) *QuestRewardWorker {
	if log == nil {
		log = slog.Default()
	}
	return &QuestRewardWorker{ledger: l, log: log}
}

// Work runs the ledger with the assignee as the active user. A returned error
// makes River retry the job.
func (w *QuestRewardWorker) Work(ctx context.Context, job *river.Job[QuestRewardArgs]) error {
	args := job.Args
	if args.UserID == "" {
		w.log.Warn("quest reward without assignee, dropping", "task_id", args.TaskID)
		return nil
	}
	ctx = session.WithUserID(ctx, args.UserID)
	amount := models.Cents(args.AmountCents)

	switch args.Outcome {
	case "", RewardOutcomeApproved:
		if err := w.ledger.SettleReward(ctx, args.Points, amount); err != nil {
			return fmt.Errorf("settle reward for task %s: %w", args.TaskID, err)
		}
		w.log.Info("quest reward settled", "task_id", args.TaskID, "user_id", args.UserID, "points", args.Points)
	case RewardOutcomeCancelled:
		if err := w.ledger.ReleasePending(ctx, amount); err != nil {
			return fmt.Errorf("release pending for task %s: %w", args.TaskID, err)
		}
		w.log.Info("pending earnings released", "task_id", args.TaskID, "user_id", args.UserID, "amount", amount)
	default:
		w.log.Warn("unknown quest reward outcome, dropping", "task_id", args.TaskID, "outcome", args.Outcome)
	}
	return nil
}
