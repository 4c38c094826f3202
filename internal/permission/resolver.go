// Package permission implements the unified read/write access resolver of
// spec.md §4.5: pod-owner check, creator check, public/private streams, and
// permission-stream delegation, plus the `.config/*` owner-only write
// restriction.
package permission

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/webpods-org/webpods/internal/corerr"
	"github.com/webpods-org/webpods/internal/db"
)

const ownerStreamPath = ".config/owner"

// ownerRecord is the JSON body of each record appended to a pod's
// .config/owner stream; the latest one names the current owner.
type ownerRecord struct {
	UserID string `json:"userId"`
}

// grantRecord is the JSON body of a permission record, named after the
// userId it grants access to (spec.md §4.2, "Permission record").
type grantRecord struct {
	ID    string `json:"id"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

type Action int

const (
	ActionRead Action = iota
	ActionWrite
)

// Resolver answers canRead/canWrite questions against the persisted stream
// and record tables. It does not know about HTTP; internal/api calls it
// after authentication and path resolution.
type Resolver struct {
	DB *db.DB
}

func New(database *db.DB) *Resolver {
	return &Resolver{DB: database}
}

// PodOwner returns the current owner userId for pod, or "" if the pod has
// never had an owner record appended (a newly created, ownerless pod).
func (r *Resolver) PodOwner(ctx context.Context, podName string) (string, error) {
	stream, err := r.DB.GetStreamByPath(ctx, podName, ownerStreamPath)
	if err != nil {
		if err == db.ErrNotFound {
			return "", nil
		}
		return "", corerr.Wrap(corerr.Database, "lookup owner stream", err)
	}
	rec, err := r.DB.GetLatestByName(ctx, stream.ID, "owner")
	if err != nil {
		if err == db.ErrNotFound {
			return "", nil
		}
		return "", corerr.Wrap(corerr.Database, "read owner record", err)
	}
	if rec.Deleted {
		return "", nil
	}
	var body ownerRecord
	if err := json.Unmarshal(rec.Content, &body); err != nil {
		return "", corerr.Wrap(corerr.Internal, "decode owner record", err)
	}
	return body.UserID, nil
}

// Can reports whether userId (empty for unauthenticated) may perform
// action against stream, implementing the ordered rules of spec.md §4.5.
func (r *Resolver) Can(ctx context.Context, stream *db.Stream, userID string, action Action) (bool, error) {
	if isSystemPath(stream.Path) && action == ActionWrite {
		owner, err := r.PodOwner(ctx, stream.PodName)
		if err != nil {
			return false, err
		}
		return userID != "" && userID == owner, nil
	}

	owner, err := r.PodOwner(ctx, stream.PodName)
	if err != nil {
		return false, err
	}
	if userID != "" && userID == owner {
		return true, nil
	}

	if userID != "" && userID == stream.UserID && (owner == "" || owner == stream.UserID) {
		return true, nil
	}

	switch {
	case stream.AccessPermission == "public":
		if action == ActionRead {
			return true, nil
		}
		return userID != "", nil
	case stream.AccessPermission == "private":
		return false, nil
	case strings.HasPrefix(stream.AccessPermission, "/"):
		return r.checkPermissionStream(ctx, stream.PodName, stream.AccessPermission, userID, action)
	default:
		// No explicit decision at this level: walk up the parent chain
		// and apply the same rules (spec.md §4.5.6) before defaulting deny.
		if stream.ParentID == nil {
			return false, nil
		}
		parent, err := r.DB.GetStreamByID(ctx, *stream.ParentID)
		if err != nil {
			if err == db.ErrNotFound {
				return false, nil
			}
			return false, corerr.Wrap(corerr.Database, "lookup parent stream", err)
		}
		return r.Can(ctx, parent, userID, action)
	}
}

func (r *Resolver) checkPermissionStream(ctx context.Context, podName, permPath, userID string, action Action) (bool, error) {
	if userID == "" {
		return false, nil
	}
	trimmed := strings.TrimPrefix(permPath, "/")
	permStream, err := r.DB.GetStreamByPath(ctx, podName, trimmed)
	if err != nil {
		if err == db.ErrNotFound {
			return false, nil
		}
		return false, corerr.Wrap(corerr.Database, "lookup permission stream", err)
	}
	rec, err := r.DB.GetLatestByName(ctx, permStream.ID, userID)
	if err != nil {
		if err == db.ErrNotFound {
			return false, nil
		}
		return false, corerr.Wrap(corerr.Database, "read permission grant", err)
	}
	if rec.Deleted {
		return false, nil
	}
	var grant grantRecord
	if err := json.Unmarshal(rec.Content, &grant); err != nil {
		return false, corerr.Wrap(corerr.Internal, "decode permission grant", err)
	}
	if action == ActionRead {
		return grant.Read, nil
	}
	return grant.Write, nil
}

// CanRead is a convenience wrapper over Can(ActionRead).
func (r *Resolver) CanRead(ctx context.Context, stream *db.Stream, userID string) (bool, error) {
	return r.Can(ctx, stream, userID, ActionRead)
}

// CanWrite is a convenience wrapper over Can(ActionWrite).
func (r *Resolver) CanWrite(ctx context.Context, stream *db.Stream, userID string) (bool, error) {
	return r.Can(ctx, stream, userID, ActionWrite)
}

func isSystemPath(path string) bool {
	return path == ".config" || strings.HasPrefix(path, ".config/")
}
