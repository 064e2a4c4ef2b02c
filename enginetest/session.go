package enginetest

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/wippyai/syngen/abi"
)

type connection struct {
	weights, distances, delays, from, to abi.Ptr
	size                                 int
}

type state struct {
	net         abi.Ptr
	connections map[string]connection
	layers      map[string]abi.Ptr
	layerSizes  map[string]int
}

// CreateNetwork snapshots props into a new network.
func (e *Engine) CreateNetwork(_ context.Context, props abi.Ptr) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryCreateNetwork) {
		return abi.Null, nil
	}
	cfg := e.snapshot(props)
	if cfg == nil {
		return abi.Null, nil
	}
	p := e.alloc(4)
	e.networks[p] = cfg
	return p, nil
}

// LoadNet loads a network saved with SaveNet.
func (e *Engine) LoadNet(_ context.Context, path string) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryLoadNet) {
		return abi.Null, nil
	}
	cfg, ok := e.files[path].(*config)
	if !ok {
		return abi.Null, nil
	}
	p := e.alloc(4)
	e.networks[p] = cfg
	return p, nil
}

// SaveNet stores the network under path.
func (e *Engine) SaveNet(_ context.Context, net abi.Ptr, path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntrySaveNet)
	cfg, ok := e.networks[net]
	if !ok {
		return false, nil
	}
	e.files[path] = cfg
	return true, nil
}

// DestroyNetwork destroys a network.
func (e *Engine) DestroyNetwork(_ context.Context, net abi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryDestroyNetwork)
	if _, ok := e.networks[net]; !ok {
		e.doubleFrees++
		return nil
	}
	delete(e.networks, net)
	e.destroyed[net]++
	return nil
}

// CreateEnvironment snapshots props into a new environment.
func (e *Engine) CreateEnvironment(_ context.Context, props abi.Ptr) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryCreateEnvironment) {
		return abi.Null, nil
	}
	cfg := e.snapshot(props)
	if cfg == nil {
		return abi.Null, nil
	}
	p := e.alloc(4)
	e.envs[p] = cfg
	return p, nil
}

// LoadEnv loads an environment saved with SaveEnv.
func (e *Engine) LoadEnv(_ context.Context, path string) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryLoadEnv) {
		return abi.Null, nil
	}
	cfg, ok := e.files[path].(*config)
	if !ok {
		return abi.Null, nil
	}
	p := e.alloc(4)
	e.envs[p] = cfg
	return p, nil
}

// SaveEnv stores the environment under path.
func (e *Engine) SaveEnv(_ context.Context, env abi.Ptr, path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntrySaveEnv)
	cfg, ok := e.envs[env]
	if !ok {
		return false, nil
	}
	e.files[path] = cfg
	return true, nil
}

// DestroyEnvironment destroys an environment.
func (e *Engine) DestroyEnvironment(_ context.Context, env abi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryDestroyEnv)
	if _, ok := e.envs[env]; !ok {
		e.doubleFrees++
		return nil
	}
	delete(e.envs, env)
	e.destroyed[env]++
	return nil
}

// BuildState allocates weights and neuron buffers for net and runs the
// weight callbacks its connections name.
func (e *Engine) BuildState(ctx context.Context, net abi.Ptr) (abi.Ptr, error) {
	e.mu.Lock()
	if e.count(abi.EntryBuildState) {
		e.mu.Unlock()
		return abi.Null, nil
	}
	p, pending := e.buildState(net)
	d := e.dispatcher
	e.mu.Unlock()

	if d != nil {
		for _, fn := range pending {
			fn(ctx, d)
		}
	}
	return p, nil
}

type dispatch func(context.Context, abi.Dispatcher)

// Caller holds e.mu.
func (e *Engine) buildState(net abi.Ptr) (abi.Ptr, []dispatch) {
	cfg, ok := e.networks[net]
	if !ok {
		return abi.Null, nil
	}
	st := &state{
		net:         net,
		connections: make(map[string]connection),
		layers:      make(map[string]abi.Ptr),
		layerSizes:  make(map[string]int),
	}
	for _, s := range cfg.list("structures") {
		for _, l := range s.list("layers") {
			key := s.scalar("name", "") + "/" + l.scalar("name", "")
			size := atoi(l.scalar("size", "1"), 1)
			st.layers[key] = e.floatBuffer(make([]float32, size))
			st.layerSizes[key] = size
		}
	}

	var pending []dispatch
	for i, c := range cfg.list("connections") {
		id := int32(i)
		size := atoi(c.scalar("size", "3"), 3)
		w := float32(atof(c.scalar("weight", "1"), 1))
		weights := make([]float32, size)
		distances := make([]float32, size)
		delays := make([]int32, size)
		from := make([]int32, size)
		to := make([]int32, size)
		for j := range weights {
			weights[j] = w
			distances[j] = float32(j * 10)
			delays[j] = int32(j + 1)
			from[j] = int32(j)
			to[j] = int32(size - j - 1)
		}
		conn := connection{
			weights:   e.floatBuffer(weights),
			distances: e.floatBuffer(distances),
			delays:    e.intBuffer(delays),
			from:      e.intBuffer(from),
			to:        e.intBuffer(to),
			size:      size,
		}
		st.connections[c.scalar("name", strconv.Itoa(i))] = conn

		n := int32(size)
		if addr, ok := e.callbacks[abi.NamespaceWeight][c.scalar("weight callback", "")]; ok {
			pending = append(pending, func(ctx context.Context, d abi.Dispatcher) {
				d.DispatchWeight(ctx, addr, id, n, conn.weights)
			})
		}
		if addr, ok := e.callbacks[abi.NamespaceIndicesWeight][c.scalar("indices callback", "")]; ok {
			pending = append(pending, func(ctx context.Context, d abi.Dispatcher) {
				d.DispatchIndicesWeight(ctx, addr, id, n, conn.weights, conn.from, conn.to)
			})
		}
		if addr, ok := e.callbacks[abi.NamespaceDistanceWeight][c.scalar("distance callback", "")]; ok {
			pending = append(pending, func(ctx context.Context, d abi.Dispatcher) {
				d.DispatchDistanceWeight(ctx, addr, id, n, conn.weights, conn.distances)
			})
		}
		if addr, ok := e.callbacks[abi.NamespaceDelayWeight][c.scalar("delay callback", "")]; ok {
			pending = append(pending, func(ctx context.Context, d abi.Dispatcher) {
				d.DispatchDelayWeight(ctx, addr, id, n, conn.weights, conn.delays)
			})
		}
	}

	p := e.alloc(4)
	e.states[p] = st
	return p, pending
}

// BuildLoadState builds a state for net and loads weights saved at path.
func (e *Engine) BuildLoadState(ctx context.Context, net abi.Ptr, path string) (abi.Ptr, error) {
	e.mu.Lock()
	if e.count(abi.EntryBuildLoadState) {
		e.mu.Unlock()
		return abi.Null, nil
	}
	saved, ok := e.files[path].(map[string][]float32)
	if !ok {
		e.mu.Unlock()
		return abi.Null, nil
	}
	p, _ := e.buildState(net)
	if !p.IsNull() {
		e.restore(e.states[p], saved)
	}
	e.mu.Unlock()
	return p, nil
}

// LoadState overwrites the state's weights with those saved at path.
func (e *Engine) LoadState(_ context.Context, st abi.Ptr, path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryLoadState)
	s, ok := e.states[st]
	saved, sok := e.files[path].(map[string][]float32)
	if !ok || !sok {
		return false, nil
	}
	e.restore(s, saved)
	return true, nil
}

// Caller holds e.mu.
func (e *Engine) restore(s *state, saved map[string][]float32) {
	for name, values := range saved {
		c, ok := s.connections[name]
		if !ok || len(values) != c.size {
			continue
		}
		for i, f := range values {
			_ = e.mem.WriteU32(uint32(c.weights)+uint32(i)*abi.Stride, math.Float32bits(f))
		}
	}
}

// SaveState stores the state's weights under path.
func (e *Engine) SaveState(_ context.Context, st abi.Ptr, path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntrySaveState)
	s, ok := e.states[st]
	if !ok {
		return false, nil
	}
	saved := make(map[string][]float32, len(s.connections))
	for name, c := range s.connections {
		saved[name] = e.readFloats(c.weights, c.size)
	}
	e.files[path] = saved
	return true, nil
}

// DestroyState destroys a state.
func (e *Engine) DestroyState(_ context.Context, st abi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryDestroyState)
	if _, ok := e.states[st]; !ok {
		e.doubleFrees++
		return nil
	}
	delete(e.states, st)
	e.destroyed[st]++
	return nil
}

func (e *Engine) layerData(entry string, st abi.Ptr, structure, layer string) abi.Array {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(entry)
	s, ok := e.states[st]
	if !ok {
		return abi.Array{Type: abi.ElemFloat}
	}
	key := structure + "/" + layer
	buf, ok := s.layers[key]
	if !ok {
		return abi.Array{Type: abi.ElemFloat}
	}
	return abi.Array{Size: int32(s.layerSizes[key]), Type: abi.ElemFloat, Data: buf}
}

// GetNeuronData returns the per-neuron buffer of a layer. The buffer
// belongs to the state.
func (e *Engine) GetNeuronData(_ context.Context, st abi.Ptr, structure, layer, _ string) (abi.Array, error) {
	return e.layerData(abi.EntryGetNeuronData, st, structure, layer), nil
}

// GetLayerData returns the per-layer buffer of a layer.
func (e *Engine) GetLayerData(_ context.Context, st abi.Ptr, structure, layer, _ string) (abi.Array, error) {
	return e.layerData(abi.EntryGetLayerData, st, structure, layer), nil
}

func (e *Engine) connectionData(entry string, st abi.Ptr, name, key string) abi.Array {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(entry)
	s, ok := e.states[st]
	if !ok {
		return abi.Array{Type: abi.ElemFloat}
	}
	c, ok := s.connections[name]
	if !ok {
		return abi.Array{Type: abi.ElemFloat}
	}
	switch key {
	case "weights":
		return abi.Array{Size: int32(c.size), Type: abi.ElemFloat, Data: c.weights}
	case "distances":
		return abi.Array{Size: int32(c.size), Type: abi.ElemFloat, Data: c.distances}
	case "delays":
		return abi.Array{Size: int32(c.size), Type: abi.ElemInt, Data: c.delays}
	}
	return abi.Array{Type: abi.ElemFloat}
}

// GetConnectionData returns a buffer of a connection.
func (e *Engine) GetConnectionData(_ context.Context, st abi.Ptr, connection, key string) (abi.Array, error) {
	return e.connectionData(abi.EntryGetConnectionData, st, connection, key), nil
}

// GetWeightMatrix returns a weight matrix buffer of a connection.
func (e *Engine) GetWeightMatrix(_ context.Context, st abi.Ptr, connection, key string) (abi.Array, error) {
	return e.connectionData(abi.EntryGetWeightMatrix, st, connection, key), nil
}

type ioLayer struct {
	name string
	id   int32
	size int
	buf  abi.Ptr
	addr abi.Addr
}

// Run drives every callback IO layer of the environment for the number of
// iterations given in args and returns a report tree.
func (e *Engine) Run(ctx context.Context, net, env, st, args abi.Ptr) (abi.Ptr, error) {
	e.mu.Lock()
	if e.count(abi.EntryRun) {
		e.mu.Unlock()
		return abi.Null, nil
	}
	_, nok := e.networks[net]
	envCfg, eok := e.envs[env]
	_, sok := e.states[st]
	if !nok || !eok || !sok {
		e.mu.Unlock()
		return abi.Null, nil
	}
	iterations := atoi(e.snapshot(args).scalar("iterations", "1"), 1)

	var layers []ioLayer
	for _, m := range envCfg.list("modules") {
		if m.scalar("type", "") != "callback" {
			continue
		}
		for _, l := range m.list("layers") {
			name := l.scalar("function", "")
			addr, ok := e.callbacks[abi.NamespaceIO][name]
			if !ok {
				continue
			}
			size := atoi(l.scalar("size", "4"), 4)
			layers = append(layers, ioLayer{
				name: name,
				id:   int32(atoi(l.scalar("id", "0"), 0)),
				size: size,
				buf:  e.floatBuffer(make([]float32, size)),
				addr: addr,
			})
		}
	}
	d := e.dispatcher
	e.mu.Unlock()

	if d != nil {
		for i := 0; i < iterations; i++ {
			var wg sync.WaitGroup
			for _, l := range layers {
				wg.Add(1)
				go func(l ioLayer) {
					defer wg.Done()
					d.DispatchIO(ctx, l.addr, l.id, int32(l.size), l.buf)
				}(l)
			}
			wg.Wait()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	report := newNode()
	reportPtr := e.alloc(4)
	e.trees[reportPtr] = report
	report.scalarKeys = []string{"iterations", "status"}
	report.scalars["iterations"] = strconv.Itoa(iterations)
	report.scalars["status"] = "ok"

	summary := newNode()
	summaryPtr := e.alloc(4)
	summary.attached = true
	summary.scalarKeys = []string{"layers"}
	summary.scalars["layers"] = strconv.Itoa(len(layers))
	e.trees[summaryPtr] = summary
	report.childKeys = []string{"summary"}
	report.children["summary"] = summaryPtr

	report.arrayKeys = []string{"callbacks"}
	report.arrays["callbacks"] = []string{}
	report.caKeys = []string{"layers"}
	report.childArr["layers"] = []abi.Ptr{}
	for _, l := range layers {
		e.ioResults[l.name+"#"+strconv.Itoa(int(l.id))] = e.readFloats(l.buf, l.size)
		report.arrays["callbacks"] = append(report.arrays["callbacks"], l.name)

		ln := newNode()
		ln.attached = true
		ln.scalarKeys = []string{"function", "id"}
		ln.scalars["function"] = l.name
		ln.scalars["id"] = strconv.Itoa(int(l.id))
		lp := e.alloc(4)
		e.trees[lp] = ln
		report.childArr["layers"] = append(report.childArr["layers"], lp)
	}
	return reportPtr, nil
}

// Interrupt records an interrupt request.
func (e *Engine) Interrupt(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryInterrupt)
	e.interrupts++
	return nil
}
