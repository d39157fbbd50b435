package broker

import "context"

const minBufferSize = 8

// pending 一个等待就绪的信封.
type pending struct {
	ctx  context.Context
	env  *Envelope
	done func(error)
}

// fifo 基于环形缓冲区的先进先出队列.
//
// 底层数组长度始终为 2 的幂，按需扩容；容量上限由 Manager 控制.
type fifo struct {
	buf   []pending
	head  int
	tail  int
	count int
}

func newFIFO() *fifo {
	return &fifo{buf: make([]pending, minBufferSize)}
}

// push 在尾部追加.
func (q *fifo) push(p pending) {
	if q.count == len(q.buf) {
		q.resize(len(q.buf) << 1)
	}
	q.buf[q.tail] = p
	q.tail = (q.tail + 1) & (len(q.buf) - 1)
	q.count++
}

// pop 从头部取出.
func (q *fifo) pop() (pending, bool) {
	if q.count == 0 {
		return pending{}, false
	}
	p := q.buf[q.head]
	q.buf[q.head] = pending{}
	q.head = (q.head + 1) & (len(q.buf) - 1)
	q.count--
	if len(q.buf) > minBufferSize && q.count <= len(q.buf)/4 {
		q.resize(len(q.buf) >> 1)
	}
	return p, true
}

// drain 按入队顺序取出全部元素并清空队列.
func (q *fifo) drain() []pending {
	out := make([]pending, 0, q.count)
	for q.count > 0 {
		p, _ := q.pop()
		out = append(out, p)
	}
	return out
}

func (q *fifo) len() int {
	return q.count
}

func (q *fifo) resize(size int) {
	buf := make([]pending, size)
	if q.count > 0 {
		if q.head < q.tail {
			copy(buf, q.buf[q.head:q.tail])
		} else {
			n := copy(buf, q.buf[q.head:])
			copy(buf[n:], q.buf[:q.tail])
		}
	}
	q.buf = buf
	q.head = 0
	q.tail = q.count & (size - 1)
}
