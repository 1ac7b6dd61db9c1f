package engine

import (
	"context"
	"log"
	"net/http"
	"sort"
	"sync"

	"kopiad/pkg/types"
)

// DefaultRepoID is the key used when the host manages a single repository,
// e.g. the Windows background-service variant.
const DefaultRepoID types.RepoID = "default"

// Registry owns the mapping from repository id to engine instance. The lock
// is held only for map mutation; blocking work (spawn, kill) happens outside
// it so one key's slow startup never stalls the others.
type Registry struct {
	mu        sync.Mutex
	instances map[types.RepoID]*Instance
	opts      Options
}

// NewRegistry builds an empty registry. opts supplies per-instance spawn
// parameters; ConfigDir may be overridden per start call.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		instances: make(map[types.RepoID]*Instance),
		opts:      opts,
	}
}

// Start spawns an engine instance for repoID. The key is reserved under the
// lock before the spawn begins, so a concurrent duplicate start race-loses
// deterministically with AlreadyRunning.
func (r *Registry) Start(repoID types.RepoID, configDir string) (types.InstanceInfo, error) {
	if configDir == "" {
		configDir = r.opts.ConfigDir
	}
	opts := r.opts
	opts.ConfigDir = configDir

	inst := newInstance(repoID, opts)
	r.mu.Lock()
	if _, ok := r.instances[repoID]; ok {
		r.mu.Unlock()
		return types.InstanceInfo{}, ErrAlreadyRunning(string(repoID))
	}
	exclude := make(map[int]bool, len(r.instances))
	for _, other := range r.instances {
		if p := other.Port(); p != 0 {
			exclude[p] = true
		}
	}
	r.instances[repoID] = inst
	r.mu.Unlock()

	if err := inst.start(exclude); err != nil {
		r.mu.Lock()
		delete(r.instances, repoID)
		r.mu.Unlock()
		return types.InstanceInfo{}, err
	}
	instancesGauge.Inc()
	return inst.Info(), nil
}

// Stop removes the instance for repoID and terminates its child. The key is
// observable as absent as soon as Stop returns.
func (r *Registry) Stop(repoID types.RepoID) error {
	r.mu.Lock()
	inst, ok := r.instances[repoID]
	if ok {
		delete(r.instances, repoID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotRunning(string(repoID))
	}
	instancesGauge.Dec()
	return inst.Stop()
}

// Status reports the instance's local state; absent keys yield a
// not-running status. Never blocks on the network.
func (r *Registry) Status(repoID types.RepoID) types.InstanceStatus {
	r.mu.Lock()
	inst, ok := r.instances[repoID]
	r.mu.Unlock()
	if !ok {
		return types.InstanceStatus{RepoID: repoID, Running: false}
	}
	return inst.Status()
}

// Get returns the live instance for repoID, if present.
func (r *Registry) Get(repoID types.RepoID) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[repoID]
	return inst, ok
}

// HTTPClient returns the instance's pre-built authenticated client, or nil
// when the key is absent or the instance is not Ready.
func (r *Registry) HTTPClient(repoID types.RepoID) *http.Client {
	inst, ok := r.Get(repoID)
	if !ok {
		return nil
	}
	return inst.Client()
}

// WaitReady delegates to the instance's readiness waiter.
func (r *Registry) WaitReady(ctx context.Context, repoID types.RepoID) error {
	inst, ok := r.Get(repoID)
	if !ok {
		return ErrNotRunning(string(repoID))
	}
	return inst.WaitReady(ctx)
}

// List returns the running repository ids in stable order.
func (r *Registry) List() []types.RepoID {
	r.mu.Lock()
	ids := make([]types.RepoID, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StatusAll returns the status of every live instance, ordered by id.
func (r *Registry) StatusAll() []types.InstanceStatus {
	out := make([]types.InstanceStatus, 0)
	for _, id := range r.List() {
		out = append(out, r.Status(id))
	}
	return out
}

// Default resolves the instance the Service Channel reports on: the
// "default" key when present, otherwise a sole running instance.
func (r *Registry) Default() (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[DefaultRepoID]; ok {
		return inst, true
	}
	if len(r.instances) == 1 {
		for _, inst := range r.instances {
			return inst, true
		}
	}
	return nil, false
}

// DefaultStatus reports the default instance's status, for the service
// channel.
func (r *Registry) DefaultStatus() (types.InstanceStatus, bool) {
	inst, ok := r.Default()
	if !ok {
		return types.InstanceStatus{}, false
	}
	return inst.Status(), true
}

// DefaultInfo reports the default instance's connection info, for the
// service channel.
func (r *Registry) DefaultInfo() (types.InstanceInfo, bool) {
	inst, ok := r.Default()
	if !ok {
		return types.InstanceInfo{}, false
	}
	return inst.Info(), true
}

// StopAll terminates every instance. Used during host teardown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	insts := make([]*Instance, 0, len(r.instances))
	for id, inst := range r.instances {
		insts = append(insts, inst)
		delete(r.instances, id)
	}
	r.mu.Unlock()
	for _, inst := range insts {
		instancesGauge.Dec()
		if err := inst.Stop(); err != nil && !IsNotRunning(err) {
			log.Printf("engine=registry event=stop_all_error repo=%s err=%v", inst.repoID, err)
		}
	}
}
