package main

import (
	"context"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader/v7"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// Loaders holds the per-request dataloaders.
type Loaders struct {
	Users *dataloader.Loader[string, *User]
}

func newLoaders(st store) *Loaders {
	return &Loaders{
		Users: dataloader.NewBatchedLoader(userBatchFn(st), dataloader.WithWait[string, *User](16*time.Millisecond)),
	}
}

func loadersFromContext(ctx context.Context) *Loaders {
	if l, ok := ctx.Value(dataLoaderKey).(*Loaders); ok {
		return l
	}
	return nil
}

func withLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, l)
}

// userBatchFn loads users by uuid in one query. Missing users get errNotFound.
func userBatchFn(st store) dataloader.BatchFunc[string, *User] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*User] {
		results := make([]*dataloader.Result[*User], len(keys))

		users, err := st.UsersByUUIDs(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[*User]{Error: err}
			}
			return results
		}

		byID := make(map[string]*User, len(users))
		for _, u := range users {
			byID[u.UUID] = u
		}
		for i, key := range keys {
			if u, ok := byID[key]; ok {
				results[i] = &dataloader.Result[*User]{Data: u}
			} else {
				results[i] = &dataloader.Result[*User]{Error: errNotFound}
			}
		}
		return results
	}
}

// dataLoaderMiddleware gives every request fresh loaders so nothing is cached
// across requests.
func dataLoaderMiddleware(st store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withLoaders(r.Context(), newLoaders(st))))
		})
	}
}
