package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/auth"
	"github.com/frahmantamala/orgtree/internal/core/events"
	"github.com/frahmantamala/orgtree/internal/node"
	"golang.org/x/crypto/bcrypt"
)

// Repository persists users. GetByID returns archived users too; every other
// read filters them out. Missing rows yield internal.ErrUserNotFound and a
// duplicate email yields internal.ErrEmailTaken.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	SetPassword(ctx context.Context, id, hash string, updatedAt int64) error
	SetDeletedAt(ctx context.Context, id string, deletedAt, updatedAt int64) error
	List(ctx context.Context, q ListQuery) ([]*User, int64, error)
}

// Nodes is the part of the hierarchy the directory depends on.
type Nodes interface {
	GetByID(ctx context.Context, id string) (*node.Node, error)
	DescendantIDs(ctx context.Context, id string) ([]string, error)
}

type Authorizer interface {
	CanActOnNode(ctx context.Context, actor internal.Actor, targetNodeID string) (bool, error)
}

type Service struct {
	repo       Repository
	nodes      Nodes
	access     Authorizer
	publisher  events.Publisher
	cfg        internal.DomainConfig
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, nodes Nodes, access Authorizer, publisher events.Publisher, cfg internal.DomainConfig, bcryptCost int, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		nodes:      nodes,
		access:     access,
		publisher:  publisher,
		cfg:        cfg,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// Create stores a new user under a live node. Managers may only add users
// to nodes within their subtree.
func (s *Service) Create(ctx context.Context, actor internal.Actor, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(s.cfg.GenderTypes); err != nil {
		return nil, err
	}

	switch actor.Role {
	case internal.RoleAdmin:
	case internal.RoleManager:
		ok, err := s.access.CanActOnNode(ctx, actor, dto.NodeID)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Warn("user creation outside actor scope", "actor_id", actor.ID, "node_id", dto.NodeID)
			return nil, internal.ErrUserOutOfScope
		}
	default:
		return nil, internal.ErrRoleNotPermitted
	}

	if _, err := s.liveNode(ctx, dto.NodeID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	now := s.now().UnixMilli()
	u := &User{
		Email:        dto.Email,
		PasswordHash: string(hash),
		FullName:     dto.FullName,
		Gender:       dto.Gender,
		Role:         internal.Role(dto.Role),
		NodeID:       dto.NodeID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", u.ID, "node_id", u.NodeID, "actor_id", actor.ID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserCreated, u.ID, u.NodeID, actor.ID))
	return u, nil
}

// List returns one page of live users visible to actor. Non-admins only see
// their own node, or their node plus its descendants when requested, and
// employees only see employees. Non-admins never see themselves.
func (s *Service) List(ctx context.Context, actor internal.Actor, q ListQuery) (*internal.ListResult[*Profile], error) {
	q = q.Normalize(s.cfg.MaxPageSize)
	q.NodeIDs = nil
	q.Role = ""
	q.ExcludeID = ""

	if actor.ID != internal.AdminID {
		q.ExcludeID = actor.ID
	}

	if !actor.IsAdmin() {
		self, err := s.liveUser(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		q.NodeIDs = []string{self.NodeID}
		if q.Descendants {
			below, err := s.nodes.DescendantIDs(ctx, self.NodeID)
			if err != nil {
				return nil, err
			}
			q.NodeIDs = append(below, self.NodeID)
		}
	}
	if actor.Role == internal.RoleEmployee {
		q.Role = internal.RoleEmployee
	}

	users, total, err := s.repo.List(ctx, q)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return nil, err
	}

	list := make([]*Profile, 0, len(users))
	for _, u := range users {
		list = append(list, u.Public())
	}
	return &internal.ListResult[*Profile]{Total: total, List: list}, nil
}

// GetByID returns a live user the actor is allowed to see.
func (s *Service) GetByID(ctx context.Context, actor internal.Actor, id string) (*User, error) {
	u, err := s.liveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Profile returns the caller's own record.
func (s *Service) Profile(ctx context.Context, actor internal.Actor) (*User, error) {
	return s.liveUser(ctx, actor.ID)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// Update changes fullName and gender. Users may always update themselves.
func (s *Service) Update(ctx context.Context, actor internal.Actor, id string, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(s.cfg.GenderTypes); err != nil {
		return nil, err
	}

	u, err := s.liveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ID != actor.ID {
		if err := s.authorizeMutation(ctx, actor, u); err != nil {
			return nil, err
		}
	}
	if dto.Empty() {
		return u, nil
	}

	if dto.FullName != nil {
		u.FullName = *dto.FullName
	}
	if dto.Gender != nil {
		u.Gender = *dto.Gender
	}
	u.UpdatedAt = s.now().UnixMilli()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", u.ID, "actor_id", actor.ID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserUpdated, u.ID, u.NodeID, actor.ID))
	return u, nil
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, actor internal.Actor, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.liveUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.OldPassword)); err != nil {
		return internal.ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.NewPassword), s.bcryptCost)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	if err := s.repo.SetPassword(ctx, u.ID, string(hash), s.now().UnixMilli()); err != nil {
		return err
	}

	s.logger.Info("user password changed", "user_id", u.ID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserPasswordChanged, u.ID, u.NodeID, actor.ID))
	return nil
}

func (s *Service) Archive(ctx context.Context, actor internal.Actor, id string) (*User, error) {
	u, err := s.liveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeMutation(ctx, actor, u); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	if err := s.repo.SetDeletedAt(ctx, u.ID, now, now); err != nil {
		return nil, err
	}
	u.DeletedAt = now
	u.UpdatedAt = now

	s.logger.Info("user archived", "user_id", u.ID, "actor_id", actor.ID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserArchived, u.ID, u.NodeID, actor.ID))
	return u, nil
}

func (s *Service) Restore(ctx context.Context, actor internal.Actor, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Archived() {
		return nil, internal.ErrUserNotArchived
	}
	if err := s.authorizeMutation(ctx, actor, u); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	if err := s.repo.SetDeletedAt(ctx, u.ID, 0, now); err != nil {
		return nil, err
	}
	u.DeletedAt = 0
	u.UpdatedAt = now

	s.logger.Info("user restored", "user_id", u.ID, "actor_id", actor.ID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserRestored, u.ID, u.NodeID, actor.ID))
	return u, nil
}

// CredentialByEmail serves user login.
func (s *Service) CredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &auth.Credential{
		Actor:        u.Actor(),
		PasswordHash: u.PasswordHash,
		Profile:      u.Public(),
	}, nil
}

func (s *Service) liveUser(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Archived() {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

func (s *Service) liveNode(ctx context.Context, id string) (*node.Node, error) {
	n, err := s.nodes.GetByID(ctx, id)
	if errors.Is(err, internal.ErrNodeNotFound) {
		return nil, internal.NewValidationFieldError("nodeId", "nodeId does not reference a live node", internal.ErrCodeNodeNotFound)
	}
	return n, err
}

// authorizeView: admins see everyone, managers see their subtree, employees
// see employees of their own node. Everybody sees themselves.
func (s *Service) authorizeView(ctx context.Context, actor internal.Actor, u *User) error {
	if actor.IsAdmin() || actor.ID == u.ID {
		return nil
	}
	switch actor.Role {
	case internal.RoleManager:
		return s.requireNodeScope(ctx, actor, u)
	case internal.RoleEmployee:
		self, err := s.liveUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if self.NodeID == u.NodeID && u.Role == internal.RoleEmployee {
			return nil
		}
	}
	return internal.ErrUserOutOfScope
}

func (s *Service) authorizeMutation(ctx context.Context, actor internal.Actor, u *User) error {
	switch actor.Role {
	case internal.RoleAdmin:
		return nil
	case internal.RoleManager:
		return s.requireNodeScope(ctx, actor, u)
	}
	return internal.ErrRoleNotPermitted
}

func (s *Service) requireNodeScope(ctx context.Context, actor internal.Actor, u *User) error {
	ok, err := s.access.CanActOnNode(ctx, actor, u.NodeID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("user access outside actor scope", "actor_id", actor.ID, "user_id", u.ID)
		return internal.ErrUserOutOfScope
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "event_type", event.EventType())
	}
}
