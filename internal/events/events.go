// Package events publishes domain events to NATS.
package events

import (
	"context"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

// Event topic constants
const (
	TopicWorkPackageCreated = "workq.work_package.created"

	TopicQueryCreated = "workq.query.created"
	TopicQueryUpdated = "workq.query.updated"
	TopicQueryDeleted = "workq.query.deleted"

	TopicProjectCreated    = "workq.project.created"
	TopicMembershipCreated = "workq.membership.created"

	// TopicAll matches every workq event.
	TopicAll = "workq.>"
)

// Event types

type WorkPackageCreated struct {
	WorkPackage *model.WorkPackage `json:"work_package"`
	ActorID     int64              `json:"actor_id"`
}

// QueryChanged is published for created and updated saved queries. The
// query is carried in its transport shape so filters keep their order.
type QueryChanged struct {
	Query   query.Transport `json:"query"`
	ActorID int64           `json:"actor_id"`
}

type QueryDeleted struct {
	QueryID int64 `json:"query_id"`
	ActorID int64 `json:"actor_id"`
}

type ProjectCreated struct {
	Project *model.Project `json:"project"`
	ActorID int64          `json:"actor_id"`
}

type MembershipCreated struct {
	Membership *model.Membership `json:"membership"`
	ActorID    int64             `json:"actor_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NoopPublisher discards events. The server uses it when no NATS URL is
// configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
