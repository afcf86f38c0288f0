package service

import (
	"context"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"go.uber.org/zap"
)

// UserService serves the signed-in user's profile and their applications.
type UserService struct {
	store  port.Store
	writer *Writer
	now    func() time.Time
	logger *zap.Logger
}

func NewUserService(store port.Store, writer *Writer, logger *zap.Logger) *UserService {
	return &UserService{store: store, writer: writer, now: time.Now, logger: logger}
}

// Profile is the user with the customer or agent record behind it.
type Profile struct {
	*domain.User
	Customer *domain.Customer `json:"customer,omitempty"`
	Agent    *domain.Agent    `json:"agent,omitempty"`
}

func (s *UserService) Me(ctx context.Context, p *domain.Principal) (*Profile, error) {
	u, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := &Profile{User: u}
	if u.CustomerID != nil {
		if out.Customer, err = s.store.GetCustomer(ctx, *u.CustomerID); ignoreNotFound(err) != nil {
			return nil, err
		}
	}
	if u.AgentID != nil {
		if out.Agent, err = s.store.GetAgent(ctx, *u.AgentID); ignoreNotFound(err) != nil {
			return nil, err
		}
	}
	return out, nil
}

// ProfileInput is the body of PATCH user/me. RecordLogin is sent by the
// front end once per sign-in.
type ProfileInput struct {
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	RecordLogin bool    `json:"record_login"`
}

func (s *UserService) PatchMe(ctx context.Context, p *domain.Principal, in *ProfileInput) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "UserService.PatchMe")
	defer span.End()

	u, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil || in.Phone != nil {
		if err := s.updateContact(ctx, u, in); err != nil {
			return nil, err
		}
	}
	if in.RecordLogin {
		if err := s.RecordLogin(ctx, u); err != nil {
			return nil, err
		}
	}
	return s.Me(ctx, p)
}

func (s *UserService) updateContact(ctx context.Context, u *domain.User, in *ProfileInput) error {
	return s.store.WithTx(ctx, func(tx port.Store) error {
		if u.CustomerID != nil {
			c, err := tx.GetCustomer(ctx, *u.CustomerID)
			if err != nil {
				return err
			}
			if in.Name != nil {
				c.Name = strings.TrimSpace(*in.Name)
			}
			if in.Phone != nil {
				c.Phone = domain.NormalizePhone(*in.Phone)
			}
			return tx.SaveCustomer(ctx, c)
		}
		if u.AgentID != nil {
			a, err := tx.GetAgent(ctx, *u.AgentID)
			if err != nil {
				return err
			}
			if in.Name != nil {
				a.Name = *in.Name
			}
			if in.Phone != nil {
				a.Phone = *in.Phone
			}
			a.Normalize()
			return tx.SaveAgent(ctx, a)
		}
		return &domain.ErrForbidden{Action: "update profile"}
	})
}

// RecordLogin stamps the login and lets the user signal handlers republish
// the customer's applications.
func (s *UserService) RecordLogin(ctx context.Context, u *domain.User) error {
	now := s.now()
	if u.FirstLogin == nil {
		u.FirstLogin = &now
	}
	u.LastLogin = &now
	u.LoginCount++
	res, err := s.writer.SaveUser(ctx, u, domain.SourceExternal)
	if err != nil {
		return err
	}
	for _, he := range res.HandlerErrors {
		s.logger.Warn("login handler failed", zap.String("user_id", u.ID.String()), zap.String("handler", he.Handler), zap.Error(he.Err))
	}
	return nil
}

// Applications lists the caller's applications: their own for customers,
// the ones they represent for agents.
func (s *UserService) Applications(ctx context.Context, p *domain.Principal, page, pageSize int) ([]domain.Application, int, error) {
	f := port.ApplicationFilter{Page: page, PageSize: pageSize}
	switch {
	case p.Role == domain.UserCustomer && p.CustomerID != nil:
		f.CustomerID = p.CustomerID
	case p.Role == domain.UserAgent && p.AgentID != nil:
		f.AgentID = p.AgentID
	default:
		return nil, 0, &domain.ErrForbidden{Action: "list own applications"}
	}
	return s.store.ListApplications(ctx, f)
}

// AgentApplications is Applications restricted to agent callers.
func (s *UserService) AgentApplications(ctx context.Context, p *domain.Principal, page, pageSize int) ([]domain.Application, int, error) {
	if p.Role != domain.UserAgent {
		return nil, 0, &domain.ErrForbidden{Action: "list agent applications"}
	}
	return s.Applications(ctx, p, page, pageSize)
}
