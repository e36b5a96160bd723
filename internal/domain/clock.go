package domain

import "time"

// Clock supplies wall time and the logical tick used for trade ordering. A
// tick is the smallest externally-ordered unit of action sequencing (a block,
// or a fixed time bucket when running standalone).
type Clock interface {
	Now() time.Time
	Tick() uint64
}

// EntropySource supplies opaque bytes that are unpredictable to callers
// before their action is submitted. Price computation is a pure function of
// its inputs; unpredictability comes entirely from here.
type EntropySource interface {
	Draw() [32]byte
}
