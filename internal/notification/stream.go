package notification

import (
	"encoding/json"
	"fmt"
	"sync"
)

// subscriberBufferSize は購読者1人あたりの送信バッファサイズ。
// このバッファが溢れた購読者は受信側が停止しているとみなして切断する。
const subscriberBufferSize = 16

// subscriber は1本の購読ストリーム（ブラウザタブ1枚）に対応する。
type subscriber struct {
	// ch はシリアライズ済みイベントを受け渡すチャネル。
	ch chan string
	// closed はチャネルがクローズ済みかどうか。2重クローズを防ぐ。
	closed bool
}

// StreamRegistry は宛先ID（ユーザーIDまたはクライアントID）ごとに
// 開いている購読ストリームの集合を保持するインメモリのレジストリ。
//
// 同一の宛先に複数のタブ・デバイスが同時に購読を張れる。
// 完全に揮発性であり、プロセス再起動ですべての接続が失われる。
// 再送・バッファリング・配信保証は持たない。
type StreamRegistry struct {
	// mu はsubscribersへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// subscribers は宛先IDから購読者集合へのマップ。
	subscribers map[string]map[*subscriber]struct{}
}

// NewStreamRegistry は空のStreamRegistryを生成する。
// プロセス起動時に1つ構築し、必要とするコンポーネントに参照で渡す。
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe は宛先IDの購読を登録し、イベント受信チャネルと解除関数を返す。
// 解除関数は該当の購読だけを削除する。複数回呼んでも安全。
func (r *StreamRegistry) Subscribe(identity string) (<-chan string, func()) {
	sub := &subscriber{ch: make(chan string, subscriberBufferSize)}

	r.mu.Lock()
	set := r.subscribers[identity]
	if set == nil {
		set = make(map[*subscriber]struct{})
		r.subscribers[identity] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		r.removeLocked(identity, sub)
		r.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish は宛先IDのすべての購読ストリームへペイロードを配信する。
// 購読が1つも無い場合は何もせず正常終了する。バッファが溢れた購読者は
// 切断済みとして削除し、他の購読者への配信は継続する。
func (r *StreamRegistry) Publish(identity string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	msg := string(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subscribers[identity] {
		select {
		case sub.ch <- msg:
		default:
			// 受信が詰まっている購読者は切断として扱う
			r.removeLocked(identity, sub)
		}
	}
	return nil
}

// count は宛先IDの現在の購読数を返す。
func (r *StreamRegistry) count(identity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[identity])
}

// removeLocked は購読者を集合から削除しチャネルをクローズする。
// muを保持した状態で呼ぶこと。削除済みの購読者に対しては何もしない。
func (r *StreamRegistry) removeLocked(identity string, sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)

	set := r.subscribers[identity]
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subscribers, identity)
	}
}
