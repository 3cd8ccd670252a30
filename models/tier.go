package models

import "fmt"

type Tier string

const (
	TierBasic    Tier = "basic"
	TierEnhanced Tier = "enhanced"
	TierAdaptive Tier = "adaptive"
	TierGenius   Tier = "genius"
)

// TierThreshold 解锁某一级所需的最少条目数
type TierThreshold struct {
	Tier       Tier
	MinEntries int
}

// TierThresholds 按解锁顺序排列；分级选择与进度展示共用这一张表
var TierThresholds = []TierThreshold{
	{Tier: TierBasic, MinEntries: 0},
	{Tier: TierEnhanced, MinEntries: 4},
	{Tier: TierAdaptive, MinEntries: 11},
	{Tier: TierGenius, MinEntries: 25},
}

// TierForCount 根据累计条目数推导当前等级
func TierForCount(entryCount int) Tier {
	tier := TierBasic
	for _, t := range TierThresholds {
		if entryCount >= t.MinEntries {
			tier = t.Tier
		}
	}
	return tier
}

// Rank 等级序号，未知等级为 -1
func (t Tier) Rank() int {
	for i, th := range TierThresholds {
		if th.Tier == t {
			return i
		}
	}
	return -1
}

// Valid 判断是否为已知等级
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// Progression 距离下一级的进度
type Progression struct {
	Tier          Tier   `json:"tier"`
	EntryCount    int    `json:"entry_count"`
	NextTier      Tier   `json:"next_tier,omitempty"`
	EntriesToNext int    `json:"entries_to_next"`
	Status        string `json:"status"`
}

// ProgressionFor 生成可读的进度描述
func ProgressionFor(entryCount int) Progression {
	current := TierForCount(entryCount)
	p := Progression{Tier: current, EntryCount: entryCount}

	rank := current.Rank()
	if rank == len(TierThresholds)-1 {
		p.Status = "All intelligence levels unlocked"
		return p
	}

	next := TierThresholds[rank+1]
	p.NextTier = next.Tier
	p.EntriesToNext = next.MinEntries - entryCount
	unit := "entries"
	if p.EntriesToNext == 1 {
		unit = "entry"
	}
	p.Status = fmt.Sprintf("%d more %s to unlock %s intelligence", p.EntriesToNext, unit, next.Tier)
	return p
}
