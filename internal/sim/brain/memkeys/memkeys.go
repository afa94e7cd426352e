// Package memkeys is the catalog of memory keys shared by sensors and
// behaviors.
package memkeys

import (
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
)

// WalkTarget asks MoveToTargetSink to bring the entity within CloseEnough
// blocks of Pos.
type WalkTarget struct {
	Pos         level.BlockPos `json:"pos"`
	Speed       float64        `json:"speed"`
	CloseEnough int            `json:"close_enough"`
}

var (
	WalkTargetKey            = memory.NewKey[WalkTarget]("walk_target")
	PathKey                  = memory.NewKey[*nav.Path]("path")
	CantReachWalkTargetSince = memory.NewKey[uint64]("cant_reach_walk_target_since")
	LookTarget               = memory.NewKey[level.Vec3]("look_target")

	NearestLivingEntities = memory.NewSliceKey[level.EntityRef]("nearest_living_entities")
	VisibleLivingEntities = memory.NewSliceKey[level.EntityRef]("visible_living_entities")
	NearestPlayers        = memory.NewSliceKey[level.EntityRef]("nearest_players")
	NearestVisiblePlayer  = memory.NewKey[level.EntityRef]("nearest_visible_player")
	NearestHostile        = memory.NewKey[level.EntityRef]("nearest_hostile")
	AttackTarget          = memory.NewKey[level.EntityRef]("attack_target")
	HurtBy                = memory.NewKey[level.DamageSource]("hurt_by")
	HurtByEntity          = memory.NewKey[string]("hurt_by_entity")
	NearestBed            = memory.NewKey[level.BlockPos]("nearest_bed")
	NearestRepellent      = memory.NewKey[level.BlockPos]("nearest_repellent")
	Heard                 = memory.NewFlagKey("heard_bell")
	LastSlept             = memory.NewKey[uint64]("last_slept", memory.Persist())
	LastWorkedAtPoi       = memory.NewKey[uint64]("last_worked_at_poi", memory.Persist())
	Home                  = memory.NewKey[level.BlockPos]("home", memory.Persist())
	JobSite               = memory.NewKey[level.BlockPos]("job_site", memory.Persist())
	MeetingPoint          = memory.NewKey[level.BlockPos]("meeting_point", memory.Persist())
)
