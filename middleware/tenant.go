package middleware

import (
	"context"

	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// Tenant returns middleware that restores the tenant scope from the
// job's TenantID field into the context, so handlers see the same scope
// as the webhook request that enqueued the job. Jobs without a tenant
// run unscoped; tenant-checked operations inside the handler then fail
// closed via tenant.Require.
func Tenant() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.TenantID != "" {
			var err error
			ctx, err = tenant.Bind(ctx, j.TenantID)
			if err != nil {
				return err
			}
		}
		return next(ctx)
	}
}
