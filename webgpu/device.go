//go:build !nogpu

package webgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/forall/device"
)

// fenceTimeout bounds the wait for a submitted batch.
const fenceTimeout = 5 * time.Second

func init() {
	device.Register("webgpu", func() (device.Device, error) { return New() })
}

// Device executes Programs on a GPU through gogpu/wgpu.
//
// Launch compiles the program's pipeline (cached per program), creates
// and uploads its buffers, and records the launch; issuance failures
// surface there. Synchronize encodes all recorded launches as compute
// passes in one command buffer, submits it behind a single fence, waits,
// performs readbacks, and releases per-launch resources. Batching the
// submission lets passes overlap on the device queue, and implicit
// storage barriers between passes preserve issue order where buffers
// are shared.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	dev      hal.Device
	queue    hal.Queue

	pipelines map[*Program]*pipelineState
	pending   []*pendingLaunch

	adapterName    string
	externalDevice bool // true when using a shared device (don't destroy on Close)
	closed         bool
}

var _ device.Device = (*Device)(nil)
var _ device.Capabilities = (*Device)(nil)

// pipelineState holds the compiled pipeline of one program.
type pipelineState struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// pendingLaunch is one recorded launch awaiting submission.
type pendingLaunch struct {
	state     *pipelineState
	geom      device.Geometry
	bindGroup hal.BindGroup
	buffers   []hal.Buffer
	readbacks []readback
}

// readback pairs a staging buffer with the host slice it fills.
type readback struct {
	storage hal.Buffer
	staging hal.Buffer
	data    []byte
}

// New opens the GPU device: Vulkan backend, first discrete or
// integrated adapter, default features and limits.
func New() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters enumerated", ErrNoGPU)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("webgpu: open device: %w", err)
	}

	d := &Device{
		instance:    instance,
		dev:         openDev.Device,
		queue:       openDev.Queue,
		pipelines:   make(map[*Program]*pipelineState),
		adapterName: selected.Info.Name,
	}
	slogger().Info("webgpu: device opened", "adapter", d.adapterName)
	return d, nil
}

// SetDeviceProvider switches the device to a shared hal.Device and
// hal.Queue lent by an external provider (e.g. an embedding gogpu
// application). The provider must implement HalDevice() any and
// HalQueue() any.
func (d *Device) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("webgpu: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return fmt.Errorf("webgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("webgpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseLocked()
	if !d.externalDevice && d.dev != nil {
		d.dev.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}

	d.dev = dev
	d.queue = queue
	d.externalDevice = true
	d.pipelines = make(map[*Program]*pipelineState)
	slogger().Info("webgpu: switched to shared GPU device")
	return nil
}

// Name returns "webgpu".
func (d *Device) Name() string { return "webgpu" }

// Adapter returns the name of the selected GPU adapter.
func (d *Device) Adapter() string { return d.adapterName }

// SetLogger configures logging for the webgpu package.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// CanExecute reports whether the kernel carries a device-native
// program. Host closures cannot run on the GPU.
func (d *Device) CanExecute(k device.Kernel) bool {
	_, ok := k.(*Program)
	return ok
}

// Launch records one program execution over geom. The pipeline is
// compiled on first use of the program; buffers are created and
// uploaded immediately so issuance failures surface here.
func (d *Device) Launch(geom device.Geometry, k device.Kernel) error {
	prog, ok := k.(*Program)
	if !ok {
		return device.ErrHostOnly
	}
	if err := prog.validate(); err != nil {
		return err
	}
	if geom.GroupSize <= 0 {
		return fmt.Errorf("%w: %d", device.ErrInvalidGroupSize, geom.GroupSize)
	}
	if geom.Groups < 0 {
		return fmt.Errorf("%w: %d groups", device.ErrNegativeLength, geom.Groups)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.ErrClosed
	}
	if geom.Groups == 0 {
		return nil
	}

	state, err := d.pipelineLocked(prog)
	if err != nil {
		return &device.DeviceError{Device: d.Name(), Op: "launch", Err: err}
	}
	launch, err := d.stageLocked(prog, state, geom)
	if err != nil {
		return &device.DeviceError{Device: d.Name(), Op: "launch", Err: err}
	}
	d.pending = append(d.pending, launch)
	slogger().Debug("webgpu: launch recorded",
		"groups", geom.Groups, "groupSize", geom.GroupSize, "pending", len(d.pending))
	return nil
}

// Synchronize submits all recorded launches in one command buffer,
// waits for the fence, performs readbacks, and releases per-launch
// resources.
func (d *Device) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil
	}
	pending := d.pending
	d.pending = nil
	defer d.cleanupLaunches(pending)

	if err := d.submitLocked(pending); err != nil {
		return &device.DeviceError{Device: d.Name(), Op: "synchronize", Err: err}
	}
	return nil
}

// Close releases all device resources. Recorded but unsubmitted
// launches are discarded.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.cleanupLaunches(d.pending)
	d.pending = nil
	d.releaseLocked()
	if !d.externalDevice && d.dev != nil {
		d.dev.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}
	d.dev = nil
	d.queue = nil
	d.instance = nil
	return nil
}

// pipelineLocked returns the compiled pipeline for prog, compiling and
// caching it on first use.
func (d *Device) pipelineLocked(prog *Program) (*pipelineState, error) {
	if state, ok := d.pipelines[prog]; ok {
		return state, nil
	}

	// Compile WGSL to SPIR-V.
	spirvBytes, err := naga.Compile(prog.WGSL)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "forall_program",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(prog.Bindings))
	for i, b := range prog.Bindings {
		layout := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		if b.Uniform {
			layout.Type = gputypes.BufferBindingTypeUniform
		} else if b.ReadOnly {
			layout.Type = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     layout,
		}
	}
	bindLayout, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "forall_bind_layout",
		Entries: entries,
	})
	if err != nil {
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}

	pipeLayout, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "forall_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		d.dev.DestroyBindGroupLayout(bindLayout)
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	pipeline, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "forall_pipeline",
		Layout:  pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: prog.entryPoint()},
	})
	if err != nil {
		d.dev.DestroyPipelineLayout(pipeLayout)
		d.dev.DestroyBindGroupLayout(bindLayout)
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}

	state := &pipelineState{
		module:     module,
		bindLayout: bindLayout,
		pipeLayout: pipeLayout,
		pipeline:   pipeline,
	}
	d.pipelines[prog] = state
	return state, nil
}

// stageLocked creates and uploads the program's buffers and builds the
// launch's bind group.
func (d *Device) stageLocked(prog *Program, state *pipelineState, geom device.Geometry) (*pendingLaunch, error) {
	launch := &pendingLaunch{state: state, geom: geom}
	bindEntries := make([]gputypes.BindGroupEntry, len(prog.Bindings))

	for i, b := range prog.Bindings {
		size := uint64(len(b.Data))
		usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
		if b.Uniform {
			usage = gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
		} else if b.ReadBack {
			usage |= gputypes.BufferUsageCopySrc
		}
		buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
			Label: "forall_binding", Size: size, Usage: usage,
		})
		if err != nil {
			d.cleanupLaunches([]*pendingLaunch{launch})
			return nil, fmt.Errorf("create buffer %d: %w", i, err)
		}
		launch.buffers = append(launch.buffers, buf)
		d.queue.WriteBuffer(buf, 0, b.Data)

		if b.ReadBack {
			staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
				Label: "forall_staging", Size: size,
				Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				d.cleanupLaunches([]*pendingLaunch{launch})
				return nil, fmt.Errorf("create staging buffer %d: %w", i, err)
			}
			launch.readbacks = append(launch.readbacks, readback{
				storage: buf, staging: staging, data: b.Data,
			})
		}

		bindEntries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: size},
		}
	}

	bindGroup, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "forall_bind",
		Layout:  state.bindLayout,
		Entries: bindEntries,
	})
	if err != nil {
		d.cleanupLaunches([]*pendingLaunch{launch})
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	launch.bindGroup = bindGroup
	return launch, nil
}

// submitLocked encodes one compute pass per launch in a single command
// buffer, submits it behind a fence, waits, and reads results back.
func (d *Device) submitLocked(pending []*pendingLaunch) error {
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "forall_batch"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("forall_batch"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	for _, launch := range pending {
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "forall_pass"})
		pass.SetPipeline(launch.state.pipeline)
		pass.SetBindGroup(0, launch.bindGroup, nil)
		pass.Dispatch(uint32(launch.geom.Groups), 1, 1)
		pass.End()
	}
	for _, launch := range pending {
		for _, rb := range launch.readbacks {
			encoder.CopyBufferToBuffer(rb.storage, rb.staging, []hal.BufferCopy{
				{SrcOffset: 0, DstOffset: 0, Size: uint64(len(rb.data))},
			})
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)

	fence, err := d.dev.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.dev.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := fenceWaitErr(d.dev.Wait(fence, 1, fenceTimeout)); err != nil {
		return err
	}

	for _, launch := range pending {
		for _, rb := range launch.readbacks {
			if err := d.queue.ReadBuffer(rb.staging, 0, rb.data); err != nil {
				return fmt.Errorf("readback: %w", err)
			}
		}
	}
	return nil
}

// fenceWaitErr folds a fence wait result into an error. A false
// completion with no underlying cause is a timeout.
func fenceWaitErr(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrTimeout, fenceTimeout)
	}
	return nil
}

// cleanupLaunches destroys the per-launch resources of the given
// launches.
func (d *Device) cleanupLaunches(launches []*pendingLaunch) {
	for _, launch := range launches {
		if launch.bindGroup != nil {
			d.dev.DestroyBindGroup(launch.bindGroup)
		}
		for _, rb := range launch.readbacks {
			if rb.staging != nil {
				d.dev.DestroyBuffer(rb.staging)
			}
		}
		for _, buf := range launch.buffers {
			if buf != nil {
				d.dev.DestroyBuffer(buf)
			}
		}
	}
}

// releaseLocked destroys all cached pipelines.
func (d *Device) releaseLocked() {
	if d.dev == nil {
		return
	}
	for _, state := range d.pipelines {
		d.dev.DestroyComputePipeline(state.pipeline)
		d.dev.DestroyPipelineLayout(state.pipeLayout)
		d.dev.DestroyBindGroupLayout(state.bindLayout)
		d.dev.DestroyShaderModule(state.module)
	}
	d.pipelines = make(map[*Program]*pipelineState)
}
