package events

import "sync"

// Publisher 一个轻量事件分发器，把入库事件广播给订阅者（UI 等）。
// 发送非阻塞：订阅者跟不上时丢弃，不拖慢检测链路。
type Publisher struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make([]chan Event, 0)}
}

// Subscribe 返回一个缓冲订阅通道。
func (p *Publisher) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Publish 广播事件；慢订阅者被跳过。
func (p *Publisher) Publish(evts ...Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range evts {
		for _, ch := range p.subs {
			select {
			case ch <- e:
			default:
			}
		}
	}
}
