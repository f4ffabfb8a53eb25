package parallel

import "fmt"

// DynBuffer is a growable message queue that can be reset without releasing
// its storage.
type DynBuffer[T any] struct {
	cells []T
}

func NewDynBuffer[T any](capacity int) *DynBuffer[T] {
	return &DynBuffer[T]{cells: make([]T, 0, capacity)}
}

func (db *DynBuffer[T]) Add(cell T) { db.cells = append(db.cells, cell) }

func (db *DynBuffer[T]) Cells() []T { return db.cells }

func (db *DynBuffer[T]) Len() int { return len(db.cells) }

func (db *DynBuffer[T]) Reset() { db.cells = db.cells[:0] }

// Envelope carries a message together with the rank that posted it
type Envelope[T any] struct {
	From int
	Msg  T
}

// MailBox moves messages between NP threads. The usage pattern is:
//
//	for range messages {Post}; Deliver; blockWait; Receive; blockWait
//
// The second wait is needed because a receiver resets the sender's outbox
// buffer after draining it.
type MailBox[T any] struct {
	NP           int
	MessageChans []chan *DynBuffer[Envelope[T]]    // One for each thread
	PostMsgQs    []map[int]*DynBuffer[Envelope[T]] // One for each thread, key is target thread
	ReceiveMsgQs []*DynBuffer[Envelope[T]]         // One for each thread
	MailFlag     []bool                            // MyThread has messages in outbox
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:           NP,
		MessageChans: make([]chan *DynBuffer[Envelope[T]], NP),
		PostMsgQs:    make([]map[int]*DynBuffer[Envelope[T]], NP),
		ReceiveMsgQs: make([]*DynBuffer[Envelope[T]], NP),
		MailFlag:     make([]bool, NP),
	}
	for n := 0; n < NP; n++ {
		mb.MessageChans[n] = make(chan *DynBuffer[Envelope[T]], NP) // Worst case is all-to-all
		mb.PostMsgQs[n] = make(map[int]*DynBuffer[Envelope[T]])
		mb.ReceiveMsgQs[n] = NewDynBuffer[Envelope[T]](0)
	}
	return mb
}

func (mb *MailBox[T]) PostMessage(myThread, targetThread int, msg T) {
	var (
		exists bool
		tgt    *DynBuffer[Envelope[T]]
	)
	if targetThread < 0 || targetThread > mb.NP-1 {
		panic(fmt.Sprintf("Target thread %d out of bounds", targetThread))
	}
	if tgt, exists = mb.PostMsgQs[myThread][targetThread]; !exists {
		tgt = NewDynBuffer[Envelope[T]](1)
		mb.PostMsgQs[myThread][targetThread] = tgt
	}
	tgt.Add(Envelope[T]{From: myThread, Msg: msg})
	mb.MailFlag[myThread] = true
}

func (mb *MailBox[T]) PostMessageToAll(myThread int, msg T) {
	for k := 0; k < mb.NP; k++ {
		if k != myThread {
			mb.PostMessage(myThread, k, msg)
		}
	}
}

func (mb *MailBox[T]) DeliverMyMessages(myThread int) {
	if !mb.MailFlag[myThread] {
		return
	}
	for targetThread, msgBuffer := range mb.PostMsgQs[myThread] {
		if msgBuffer.Len() == 0 {
			continue
		}
		mb.MessageChans[targetThread] <- msgBuffer
	}
	mb.MailFlag[myThread] = false
}

func (mb *MailBox[T]) ReceiveMyMessages(myThread int) {
	for {
		select {
		case msgBuffer := <-mb.MessageChans[myThread]:
			for _, msg := range msgBuffer.Cells() {
				mb.ReceiveMsgQs[myThread].Add(msg)
			}
			msgBuffer.Reset() // Reset the originating buffer
		default:
			return
		}
	}
}

func (mb *MailBox[T]) MyMessages(myThread int) []Envelope[T] {
	return mb.ReceiveMsgQs[myThread].Cells()
}

func (mb *MailBox[T]) ClearMyMessages(myThread int) {
	mb.ReceiveMsgQs[myThread].Reset()
}
