package nav

import (
	"math"
	"slices"

	"go.uber.org/zap"

	"voxelmind.ai/internal/sim/level"
)

type Config struct {
	RecomputeIntervalTicks uint64   `yaml:"recompute_interval_ticks" json:"recompute_interval_ticks"`
	StuckCheckIntervalTick int64    `yaml:"stuck_check_interval_ticks" json:"stuck_check_interval_ticks"`
	StuckDistanceFactor    float64  `yaml:"stuck_distance_factor" json:"stuck_distance_factor"`
	TimeoutFactor          float64  `yaml:"timeout_factor" json:"timeout_factor"`
	StepUpBlocks           []string `yaml:"step_up_blocks" json:"step_up_blocks"`
	RegionOffset           int      `yaml:"region_offset" json:"region_offset"`
	EntityRegionOffset     int      `yaml:"entity_region_offset" json:"entity_region_offset"`
	RequiredPathLength     float64  `yaml:"required_path_length" json:"required_path_length"`
}

func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.RecomputeIntervalTicks == 0 {
		c.RecomputeIntervalTicks = 20
	}
	if c.StuckCheckIntervalTick <= 0 {
		c.StuckCheckIntervalTick = 100
	}
	if c.StuckDistanceFactor <= 0 {
		c.StuckDistanceFactor = 0.25
	}
	if c.TimeoutFactor <= 0 {
		c.TimeoutFactor = 3
	}
	if c.StepUpBlocks == nil {
		c.StepUpBlocks = []string{"CAULDRON"}
	}
	if c.RegionOffset <= 0 {
		c.RegionOffset = 8
	}
	if c.EntityRegionOffset <= 0 {
		c.EntityRegionOffset = 16
	}
	if c.RequiredPathLength <= 0 {
		c.RequiredPathLength = 16
	}
}

type Option func(*Navigation)

func WithConfig(c Config) Option {
	return func(n *Navigation) {
		c.applyDefaults()
		n.cfg = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Navigation) {
		if l != nil {
			n.log = l
		}
	}
}

func WithSink(s Sink) Option {
	return func(n *Navigation) { n.sink = s }
}

// Navigation drives one mob along its current path. It is owned by that
// mob and must not be shared.
type Navigation struct {
	world  level.World
	mob    Mob
	mode   Mode
	finder Pathfinder
	cfg    Config
	pcfg   PathConfig
	log    *zap.Logger
	sink   Sink

	path  *Path
	speed float64
	tick  int64

	lastStuckCheck    int64
	lastStuckCheckPos level.Vec3
	stuck             bool

	timeoutNode      level.BlockPos
	timeoutNodeSet   bool
	timeoutTimer     uint64
	lastTimeoutCheck uint64
	timeoutLimit     float64

	maxDistanceToWaypoint float64

	delayedRecompute bool
	lastRecompute    uint64
	recomputed       bool

	targetPos    level.BlockPos
	hasTarget    bool
	reachRange   int
	nodesMult    float64
	requiredPath float64
}

func New(w level.World, m Mob, mode Mode, finder Pathfinder, opts ...Option) *Navigation {
	n := &Navigation{
		world:                 w,
		mob:                   m,
		mode:                  mode,
		finder:                finder,
		cfg:                   DefaultConfig(),
		pcfg:                  mode.PathConfig(),
		log:                   zap.NewNop(),
		maxDistanceToWaypoint: 0.5,
		nodesMult:             1,
	}
	for _, o := range opts {
		o(n)
	}
	n.requiredPath = n.cfg.RequiredPathLength
	return n
}

func (n *Navigation) Mode() Mode                     { return n.mode }
func (n *Navigation) Path() *Path                    { return n.path }
func (n *Navigation) IsStuck() bool                  { return n.stuck }
func (n *Navigation) IsDone() bool                   { return n.path == nil || n.path.IsDone() }
func (n *Navigation) IsInProgress() bool             { return !n.IsDone() }
func (n *Navigation) Stop()                          { n.path = nil }
func (n *Navigation) SpeedModifier() float64         { return n.speed }
func (n *Navigation) SetSpeedModifier(s float64)     { n.speed = s }
func (n *Navigation) MaxDistanceToWaypoint() float64 { return n.maxDistanceToWaypoint }
func (n *Navigation) CanFloat() bool                 { return n.pcfg.CanFloat }
func (n *Navigation) SetCanFloat(v bool)             { n.pcfg.CanFloat = v }

// TargetPos is the target of the last successfully created path.
func (n *Navigation) TargetPos() (level.BlockPos, bool) { return n.targetPos, n.hasTarget }

func (n *Navigation) SetRequiredPathLength(l float64)        { n.requiredPath = l }
func (n *Navigation) SetMaxVisitedNodesMultiplier(m float64) { n.nodesMult = m }
func (n *Navigation) ResetMaxVisitedNodesMultiplier()        { n.nodesMult = 1 }

func (n *Navigation) maxPathLength() float64 {
	return math.Max(n.mob.FollowRange(), n.requiredPath)
}

// RecomputePath replans toward the last target. Calls closer together than
// the recompute interval are deferred to the next Tick that is allowed to run.
func (n *Navigation) RecomputePath() {
	now := n.world.GameTime()
	if n.recomputed && now-n.lastRecompute < n.cfg.RecomputeIntervalTicks {
		n.delayedRecompute = true
		return
	}
	if !n.hasTarget {
		return
	}
	n.path = nil
	n.path = n.createPath([]level.BlockPos{n.targetPos}, n.cfg.RegionOffset, false, n.reachRange)
	n.lastRecompute = now
	n.recomputed = true
	n.delayedRecompute = false
}

// CreatePathTo plans to a single block.
func (n *Navigation) CreatePathTo(p level.BlockPos, accuracy int) *Path {
	if a, ok := n.mode.(targetAdjuster); ok {
		p = a.AdjustTarget(n.world, p)
	}
	return n.createPath([]level.BlockPos{p}, n.cfg.RegionOffset, false, accuracy)
}

// CreatePathToAny plans to whichever of targets the search reaches.
func (n *Navigation) CreatePathToAny(targets []level.BlockPos, accuracy int) *Path {
	return n.createPath(targets, n.cfg.RegionOffset, false, accuracy)
}

// CreatePathToEntity plans to the block an entity stands in, searching a
// wider region from one block above the mob.
func (n *Navigation) CreatePathToEntity(e level.EntityRef, accuracy int) *Path {
	return n.createPath([]level.BlockPos{level.Containing(e.Pos)}, n.cfg.EntityRegionOffset, true, accuracy)
}

func (n *Navigation) createPath(targets []level.BlockPos, regionOffset int, offsetUpward bool, accuracy int) *Path {
	if len(targets) == 0 {
		return nil
	}
	pos := n.mob.Position()
	if pos.Y < float64(n.world.MinY()) {
		return nil
	}
	if !n.mode.CanUpdatePath(n.mob) {
		return nil
	}
	if n.path != nil && !n.path.IsDone() && n.hasTarget && slices.Contains(targets, n.targetPos) {
		return n.path
	}

	followRange := n.maxPathLength()
	start := level.Containing(pos)
	if offsetUpward {
		start = start.Above()
	}
	r := int(followRange) + regionOffset
	req := Request{
		World:           n.world,
		Region:          Region{Min: start.Offset(-r, -r, -r), Max: start.Offset(r, r, r)},
		Mob:             n.mob,
		Start:           level.Containing(pos),
		Targets:         targets,
		MaxRange:        followRange,
		Accuracy:        accuracy,
		MaxVisitedNodes: int(math.Floor(followRange*16) * n.nodesMult),
		Config:          n.pcfg,
	}
	p := n.finder.FindPath(req)
	if p != nil {
		n.targetPos = p.Target()
		n.hasTarget = true
		n.reachRange = accuracy
		n.resetStuckTimeout()
	}
	return p
}

func (n *Navigation) MoveToPos(v level.Vec3, accuracy int, speed float64) bool {
	return n.MoveTo(n.CreatePathTo(level.Containing(v), accuracy), speed)
}

func (n *Navigation) MoveToEntity(e level.EntityRef, speed float64) bool {
	p := n.CreatePathToEntity(e, 1)
	return p != nil && n.MoveTo(p, speed)
}

// MoveTo installs p unless it matches the current path and starts following
// it. A nil path clears navigation and returns false.
func (n *Navigation) MoveTo(p *Path, speed float64) bool {
	if p == nil {
		n.path = nil
		return false
	}
	if !p.SameAs(n.path) {
		n.path = p
	}
	if n.IsDone() {
		return false
	}
	n.trimPath()
	if n.path.NodeCount() <= 0 {
		return false
	}
	n.speed = speed
	n.lastStuckCheck = n.tick
	n.lastStuckCheckPos = n.mob.Position()
	return true
}

func (n *Navigation) Tick() {
	n.tick++
	if n.delayedRecompute {
		n.RecomputePath()
	}
	if n.IsDone() {
		return
	}
	if n.mode.CanUpdatePath(n.mob) {
		n.followThePath()
	} else if n.path != nil && !n.path.IsDone() {
		// Airborne above the next node: drop it instead of hovering.
		pos := n.mob.Position()
		next := n.path.NextEntityPos(n.mob.BBWidth())
		if pos.Y > next.Y && !n.mob.OnGround() &&
			math.Floor(pos.X) == math.Floor(next.X) && math.Floor(pos.Z) == math.Floor(next.Z) {
			n.path.Advance()
		}
	}
	n.emitDebug()
	if !n.IsDone() {
		next := n.path.NextEntityPos(n.mob.BBWidth())
		n.mob.SetWantedPosition(level.Vec3{X: next.X, Y: n.mode.GroundY(n.world, next), Z: next.Z}, n.speed)
	}
}

func (n *Navigation) emitDebug() {
	if n.sink == nil || n.path == nil {
		return
	}
	n.sink.PathDebug(DebugSnapshot{
		Tick:          n.world.GameTime(),
		EntityID:      n.mob.ID(),
		Mode:          n.mode.Name(),
		Nodes:         n.path.Nodes(),
		NextIndex:     n.path.NextIndex(),
		Target:        n.path.Target(),
		MaxDistToNode: n.maxDistanceToWaypoint,
	})
}

func (n *Navigation) followThePath() {
	pos := n.mob.Position()
	width := n.mob.BBWidth()
	if width > 0.75 {
		n.maxDistanceToWaypoint = width / 2
	} else {
		n.maxDistanceToWaypoint = 0.75 - width/2
	}
	next := n.path.NextNodePos()
	dx := math.Abs(pos.X - (float64(next.X) + 0.5))
	dy := math.Abs(pos.Y - float64(next.Y))
	dz := math.Abs(pos.Z - (float64(next.Z) + 0.5))
	reached := dx < n.maxDistanceToWaypoint && dz < n.maxDistanceToWaypoint && dy < 1
	if reached || (CanCutCorner(n.path.NextNode().Type) && n.shouldTargetNextNodeInDirection(pos)) {
		n.path.Advance()
	}
	n.doStuckDetection(pos)
}

// CanCutCorner reports whether a mob may aim past a node of type t.
func CanCutCorner(t PathType) bool {
	return t != DangerFire && t != DangerOther && t != WalkableDoor
}

// shouldTargetNextNodeInDirection lets a mob close to the next node skip it
// when it can reach the node directly or when the node after it lies on
// the far side of the mob.
func (n *Navigation) shouldTargetNextNodeInDirection(pos level.Vec3) bool {
	i := n.path.NextIndex()
	if i+1 >= n.path.NodeCount() {
		return false
	}
	next := level.AtBottomCenterOf(n.path.NextNodePos())
	if !pos.CloserThan(next, 2) {
		return false
	}
	if n.mode.CanMoveDirectly(n.world, n.mob, pos, n.path.NextEntityPos(n.mob.BBWidth())) {
		return true
	}
	after := level.AtBottomCenterOf(n.path.Node(i + 1).Pos())
	toNext := next.Sub(pos)
	toAfter := after.Sub(pos)
	d := toNext.LengthSqr()
	d1 := toAfter.LengthSqr()
	if d1 >= d && d >= 0.5 {
		return false
	}
	return toAfter.Normalize().Dot(toNext.Normalize()) < 0
}

func (n *Navigation) doStuckDetection(pos level.Vec3) {
	if n.tick-n.lastStuckCheck >= n.cfg.StuckCheckIntervalTick {
		speed := n.mob.Speed()
		f := speed
		if speed < 1 {
			f = speed * speed
		}
		threshold := f * float64(n.cfg.StuckCheckIntervalTick) * n.cfg.StuckDistanceFactor
		if pos.DistanceToSqr(n.lastStuckCheckPos) < threshold*threshold {
			n.stuck = true
			n.abandon(IncidentStuck, pos)
		} else {
			n.stuck = false
		}
		n.lastStuckCheck = n.tick
		n.lastStuckCheckPos = pos
	}

	if n.path == nil || n.path.IsDone() {
		return
	}
	next := n.path.NextNodePos()
	now := n.world.GameTime()
	if n.timeoutNodeSet && next == n.timeoutNode {
		n.timeoutTimer += now - n.lastTimeoutCheck
	} else {
		n.timeoutNode = next
		n.timeoutNodeSet = true
		n.timeoutTimer = 0
		d := pos.DistanceTo(level.AtBottomCenterOf(next))
		if s := n.mob.Speed(); s > 0 {
			n.timeoutLimit = d / s * 20
		} else {
			n.timeoutLimit = 0
		}
	}
	if n.timeoutLimit > 0 && float64(n.timeoutTimer) > n.timeoutLimit*n.cfg.TimeoutFactor {
		n.resetStuckTimeout()
		n.abandon(IncidentTimeout, pos)
	}
	n.lastTimeoutCheck = now
}

func (n *Navigation) abandon(kind IncidentKind, pos level.Vec3) {
	inc := Incident{
		Tick:     n.world.GameTime(),
		EntityID: n.mob.ID(),
		Kind:     kind,
		Pos:      pos,
	}
	if n.path != nil {
		inc.Target = n.path.Target()
		inc.Nodes = n.path.NodeCount()
	}
	n.log.Debug("path abandoned",
		zap.String("entity", inc.EntityID),
		zap.String("kind", string(kind)),
		zap.Uint64("tick", inc.Tick),
		zap.Int("nodes", inc.Nodes))
	if n.sink != nil {
		n.sink.PathIncident(inc)
	}
	n.Stop()
}

func (n *Navigation) resetStuckTimeout() {
	n.timeoutNode = level.BlockPos{}
	n.timeoutNodeSet = false
	n.timeoutTimer = 0
	n.timeoutLimit = 0
	n.stuck = false
}

// trimPath lifts nodes that sit inside step-up blocks, and the node after
// them when it is not higher.
func (n *Navigation) trimPath() {
	if n.path == nil || len(n.cfg.StepUpBlocks) == 0 {
		return
	}
	for i := 0; i < n.path.NodeCount(); i++ {
		node := n.path.Node(i)
		if !slices.Contains(n.cfg.StepUpBlocks, n.world.BlockAt(node.Pos()).Kind) {
			continue
		}
		n.path.ReplaceNode(i, node.Moved(node.X, node.Y+1, node.Z))
		if i+1 < n.path.NodeCount() {
			after := n.path.Node(i + 1)
			if node.Y >= after.Y {
				n.path.ReplaceNode(i+1, node.Moved(after.X, node.Y+1, after.Z))
			}
		}
	}
}

func (n *Navigation) IsStableDestination(p level.BlockPos) bool {
	return n.mode.IsStableDestination(n.world, p)
}

// ShouldRecomputePath reports whether a block change at p is close enough
// to the remaining path to warrant replanning.
func (n *Navigation) ShouldRecomputePath(p level.BlockPos) bool {
	if n.delayedRecompute || n.path == nil || n.path.IsDone() || n.path.NodeCount() == 0 {
		return false
	}
	end, _ := n.path.EndNode()
	pos := n.mob.Position()
	mid := level.Vec3{
		X: (float64(end.X) + pos.X) / 2,
		Y: (float64(end.Y) + pos.Y) / 2,
		Z: (float64(end.Z) + pos.Z) / 2,
	}
	return p.CloserToCenterThan(mid, float64(n.path.NodeCount()-n.path.NextIndex()))
}
