package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/logging"
	"github.com/dmitrijs2005/arcticchat/internal/server/authz"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/dmitrijs2005/arcticchat/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type TaskService struct {
	repos repomanager.RepositoryManager
	authz *authz.Engine
	log   logging.Logger
}

func NewTaskService(repos repomanager.RepositoryManager, az *authz.Engine, log logging.Logger) *TaskService {
	return &TaskService{repos: repos, authz: az, log: log.With("module", "tasks")}
}

type TaskRequest struct {
	Title       string
	Description string
	// TargetRole is the lightest role that may see and work on the task.
	TargetRole models.Role
}

func (s *TaskService) Create(ctx context.Context, actorID string, req TaskRequest) (*models.Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, common.Validation("task title is required")
	}
	if !req.TargetRole.Valid() {
		return nil, common.Validation("unknown role %q", req.TargetRole)
	}
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:               uuid.NewString(),
		Title:            title,
		Description:      req.Description,
		AssignedBy:       actor.ID,
		TargetRoleWeight: req.TargetRole.Weight(),
		Status:           models.TaskPending,
	}
	if err := s.authz.Check(actor, authz.ActionAssignTask, authz.Target{Task: task}); err != nil {
		return nil, err
	}
	if err := s.repos.Tasks(s.repos.Conn()).Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.log.Info(ctx, "task assigned", "actor_id", actor.ID, "task_id", task.ID, "target_weight", task.TargetRoleWeight)
	return task, nil
}

// List returns the tasks visible to the actor's weight.
func (s *TaskService) List(ctx context.Context, actorID string) ([]*models.Task, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	// A zero-weight probe checks the actor's own standing.
	if err := s.authz.Check(actor, authz.ActionViewTask, authz.Target{Task: &models.Task{}}); err != nil {
		return nil, err
	}
	return s.repos.Tasks(s.repos.Conn()).ListVisible(ctx, actor.RoleWeight)
}

// Transition moves a task forward: pending, in_progress, completed.
func (s *TaskService) Transition(ctx context.Context, actorID, taskID string, to models.TaskStatus) (*models.Task, error) {
	actor, err := loadActor(ctx, s.repos, actorID)
	if err != nil {
		return nil, err
	}
	repo := s.repos.Tasks(s.repos.Conn())
	task, err := repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(actor, authz.ActionUpdateTask, authz.Target{Task: task}); err != nil {
		return nil, err
	}
	if !task.Status.CanTransitionTo(to) {
		return nil, common.Validation("cannot move task from %s to %s", task.Status, to)
	}
	if err := repo.UpdateStatus(ctx, taskID, task.Status, to); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.log.Info(ctx, "task updated", "actor_id", actor.ID, "task_id", taskID, "from", task.Status, "to", to)
	return repo.Get(ctx, taskID)
}
