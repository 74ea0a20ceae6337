package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fetchquest/backend/internal/execution"
	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/rewards"
	"github.com/fetchquest/backend/internal/services"
	"github.com/fetchquest/backend/internal/tasks"
)

// QuestManager is the subset of *tasks.Manager the handler needs.
type QuestManager interface {
	Reload(ctx context.Context, id string) error
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	Update(ctx context.Context, id string, patch models.TaskPatch) error
	Delete(ctx context.Context, id string) error
	Accept(ctx context.Context, id, userID string) (*models.Task, error)
	SubmitCompletion(ctx context.Context, id string, images []string) (*models.Task, error)
	VerifyCompletion(ctx context.Context, id string, approved bool, feedback *string) (*models.Task, error)
	Cancel(ctx context.Context, id string) (*models.Task, error)
	Get(id string) (*models.Task, error)
	List() []*models.Task
	ListByStatus(status models.TaskStatus) []*models.Task
}

var _ QuestManager = (*tasks.Manager)(nil)

// RewardLedger is the part of the active user's ledger touched by quest events.
type RewardLedger interface {
	RequestTask(ctx context.Context) error
	AddEarnings(ctx context.Context, amount models.Cents, pending bool) error
}

// QuestHandler serves /api/v1/quests endpoints.
type QuestHandler struct {
	Quests        QuestManager
	Ledger        RewardLedger
	EnqueueReward execution.EnqueueRewardFunc
	Validator     *services.Validator
	Logger        *slog.Logger
}

func (h *QuestHandler) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// --- POST /api/v1/quests ---

type createQuestRequest struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Price        models.Cents    `json:"price"`
	Location     models.Location `json:"location"`
	DueDate      *time.Time      `json:"due_date"`
	Urgent       bool            `json:"is_urgent"`
	Complexity   int             `json:"complexity"`
	TimeRequired int             `json:"time_required"`
	Images       []string        `json:"images"`
}

// CreateQuest handles POST /api/v1/quests.
// Auth -> PriceCheck (via middleware) -> Validate -> Create -> report RequestTask -> 201.
func (h *QuestHandler) CreateQuest(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	body, ok := readValidated(w, r, h.Validator, services.SchemaCreateQuest)
	if !ok {
		return
	}
	var req createQuestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.Quests.Create(r.Context(), &models.Task{
		ID:           req.ID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Price:        req.Price,
		Location:     req.Location,
		DueDate:      req.DueDate,
		Urgent:       req.Urgent,
		Complexity:   req.Complexity,
		TimeRequired: req.TimeRequired,
		Images:       req.Images,
		RequesterID:  userID,
	})
	if err != nil {
		writeTaskError(w, h.log(), err)
		return
	}
	if err := h.Ledger.RequestTask(r.Context()); err != nil {
		h.log().Warn("ledger request_task failed", "task_id", created.ID, "user_id", userID, "error", err)
	}
	writeJSON(w, http.StatusCreated, created)
}

// --- GET /api/v1/quests ---

// ListQuests handles GET /api/v1/quests, urgent quests first. An optional
// ?status= narrows the list.
func (h *QuestHandler) ListQuests(w http.ResponseWriter, r *http.Request) {
	var list []*models.Task
	if status := r.URL.Query().Get("status"); status != "" {
		list = h.Quests.ListByStatus(models.TaskStatus(status))
	} else {
		list = h.Quests.List()
	}
	rewards.SortForDisplay(list)
	writeJSON(w, http.StatusOK, list)
}

// ListAccepted handles GET /api/v1/quests/accepted.
func (h *QuestHandler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Quests.ListByStatus(models.TaskStatusAssigned))
}

// ListPending handles GET /api/v1/quests/pending.
func (h *QuestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Quests.ListByStatus(models.TaskStatusPendingVerification))
}

// ListCompleted handles GET /api/v1/quests/completed.
func (h *QuestHandler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Quests.ListByStatus(models.TaskStatusCompleted))
}

// --- GET /api/v1/quests/{id} ---

func (h *QuestHandler) GetQuest(w http.ResponseWriter, r *http.Request) {
	t, err := h.Quests.Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type rarityResponse struct {
	TaskID string        `json:"task_id"`
	Rarity models.Rarity `json:"rarity"`
	Points int           `json:"points"`
}

// GetRarity handles GET /api/v1/quests/{id}/rarity. The tier is recomputed
// from the quest's current inputs.
func (h *QuestHandler) GetRarity(w http.ResponseWriter, r *http.Request) {
	t, err := h.Quests.Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.log(), err)
		return
	}
	rarity := rewards.TaskRarity(t)
	writeJSON(w, http.StatusOK, rarityResponse{TaskID: t.ID, Rarity: rarity, Points: rewards.PointsForRarity(rarity)})
}

// --- PATCH /api/v1/quests/{id} ---

func (h *QuestHandler) UpdateQuest(w http.ResponseWriter, r *http.Request) {
	t, ok := h.requesterOnly(w, r)
	if !ok {
		return
	}
	body, ok := readValidated(w, r, h.Validator, services.SchemaUpdateQuest)
	if !ok {
		return
	}
	var patch models.TaskPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.Quests.Update(r.Context(), t.ID, patch); err != nil {
		h.taskError(w, r, err)
		return
	}
	updated, err := h.Quests.Get(t.ID)
	if err != nil {
		writeTaskError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- DELETE /api/v1/quests/{id} ---

func (h *QuestHandler) DeleteQuest(w http.ResponseWriter, r *http.Request) {
	t, ok := h.requesterOnly(w, r)
	if !ok {
		return
	}
	if err := h.Quests.Delete(r.Context(), t.ID); err != nil {
		h.taskError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- POST /api/v1/quests/{id}/accept ---

func (h *QuestHandler) AcceptQuest(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	t, err := h.Quests.Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.log(), err)
		return
	}
	if t.RequesterID == userID {
		writeError(w, http.StatusForbidden, "cannot accept your own quest")
		return
	}
	accepted, err := h.Quests.Accept(r.Context(), t.ID, userID)
	if err != nil {
		h.taskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

// --- POST /api/v1/quests/{id}/submit ---

type submitRequest struct {
	Images []string `json:"images"`
}

// SubmitCompletion handles POST /api/v1/quests/{id}/submit. The assignee's
// earnings for the quest are staged as pending on the first submission only;
// a resubmission after rejection reuses the staged credit.
func (h *QuestHandler) SubmitCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	t, err := h.Quests.Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.log(), err)
		return
	}
	if t.AssigneeID == nil || *t.AssigneeID != userID {
		writeError(w, http.StatusForbidden, "caller is not the assignee")
		return
	}
	body, ok := readValidated(w, r, h.Validator, services.SchemaSubmitCompletion)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	submitted, err := h.Quests.SubmitCompletion(r.Context(), t.ID, req.Images)
	if err != nil {
		h.taskError(w, r, err)
		return
	}
	if submitted.SubmissionCount == 1 {
		if err := h.Ledger.AddEarnings(r.Context(), submitted.Price, true); err != nil {
			h.log().Warn("ledger pending earnings failed", "task_id", t.ID, "user_id", userID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, submitted)
}

// --- POST /api/v1/quests/{id}/verify ---

type verifyRequest struct {
	Approved bool    `json:"approved"`
	Feedback *string `json:"feedback"`
}

// VerifyCompletion handles POST /api/v1/quests/{id}/verify. An approval
// queues the assignee's reward settlement.
func (h *QuestHandler) VerifyCompletion(w http.ResponseWriter, r *http.Request) {
	t, ok := h.requesterOnly(w, r)
	if !ok {
		return
	}
	body, ok := readValidated(w, r, h.Validator, services.SchemaVerifyCompletion)
	if !ok {
		return
	}
	var req verifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	verified, err := h.Quests.VerifyCompletion(r.Context(), t.ID, req.Approved, req.Feedback)
	if err != nil {
		h.taskError(w, r, err)
		return
	}
	if req.Approved {
		h.enqueueReward(r.Context(), verified, execution.RewardOutcomeApproved)
	}
	writeJSON(w, http.StatusOK, verified)
}

// --- POST /api/v1/quests/{id}/cancel ---

// CancelQuest handles POST /api/v1/quests/{id}/cancel. Cancelling a quest
// whose completion was submitted but not approved releases the assignee's
// staged pending earnings.
func (h *QuestHandler) CancelQuest(w http.ResponseWriter, r *http.Request) {
	t, ok := h.requesterOnly(w, r)
	if !ok {
		return
	}
	cancelled, err := h.Quests.Cancel(r.Context(), t.ID)
	if err != nil {
		h.taskError(w, r, err)
		return
	}
	staged := t.SubmissionCount > 0 &&
		t.Status != models.TaskStatusCompleted &&
		t.Status != models.TaskStatusCancelled
	if staged {
		h.enqueueReward(r.Context(), cancelled, execution.RewardOutcomeCancelled)
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// --- helpers ---

// requesterOnly loads the quest from the path and checks that the session
// user posted it.
func (h *QuestHandler) requesterOnly(w http.ResponseWriter, r *http.Request) (*models.Task, bool) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return nil, false
	}
	t, err := h.Quests.Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.log(), err)
		return nil, false
	}
	if t.RequesterID != userID {
		writeError(w, http.StatusForbidden, "only the requester may do this")
		return nil, false
	}
	return t, true
}

// enqueueReward queues the assignee's ledger settlement for t. Enqueue
// failures are logged; the quest transition already happened.
func (h *QuestHandler) enqueueReward(ctx context.Context, t *models.Task, outcome string) {
	if t.AssigneeID == nil || h.EnqueueReward == nil {
		return
	}
	args := execution.QuestRewardArgs{
		TaskID:      t.ID,
		UserID:      *t.AssigneeID,
		Outcome:     outcome,
		Points:      t.Points,
		AmountCents: int64(t.Price),
	}
	if err := h.EnqueueReward(ctx, args); err != nil {
		h.log().Error("enqueue quest reward failed", "task_id", t.ID, "user_id", args.UserID, "outcome", outcome, "error", err)
	}
}

// taskError writes err and, on a version conflict, reloads the quest from
// the store so a retry sees the stored state.
func (h *QuestHandler) taskError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tasks.ErrConflict) {
		id := r.PathValue("id")
		if lerr := h.Quests.Reload(r.Context(), id); lerr != nil {
			h.log().Error("reload after conflict failed", "task_id", id, "error", lerr)
		}
	}
	writeTaskError(w, h.log(), err)
}
