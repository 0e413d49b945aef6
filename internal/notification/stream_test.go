package notification

import (
	"testing"
)

// TestStreamRegistrySubscribePublish は購読と配信の基本動作を検証する。
func TestStreamRegistrySubscribePublish(t *testing.T) {
	t.Parallel()

	t.Run("購読者が存在しない宛先への配信は何もせず成功する", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		if err := r.Publish("user-1", map[string]string{"id": "notif-1"}); err != nil {
			t.Errorf("配信エラー: got %v, want nil", err)
		}
	})

	t.Run("購読直後の配信がチャネルに届く", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		ch, cancel := r.Subscribe("user-1")
		defer cancel()

		if err := r.Publish("user-1", map[string]string{"id": "notif-1"}); err != nil {
			t.Fatalf("配信エラー: %v", err)
		}

		msg := <-ch
		if msg != `{"id":"notif-1"}` {
			t.Errorf("受信ペイロード: got %s, want {\"id\":\"notif-1\"}", msg)
		}
	})

	t.Run("同一宛先の複数購読者全員に配信される", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		ch1, cancel1 := r.Subscribe("user-1")
		defer cancel1()
		ch2, cancel2 := r.Subscribe("user-1")
		defer cancel2()

		if got := r.count("user-1"); got != 2 {
			t.Fatalf("購読数: got %d, want 2", got)
		}

		if err := r.Publish("user-1", map[string]string{"id": "notif-1"}); err != nil {
			t.Fatalf("配信エラー: %v", err)
		}

		if msg := <-ch1; msg == "" {
			t.Error("購読者1がペイロードを受信できていません")
		}
		if msg := <-ch2; msg == "" {
			t.Error("購読者2がペイロードを受信できていません")
		}
	})

	t.Run("別の宛先の購読者には配信されない", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		ch, cancel := r.Subscribe("user-2")
		defer cancel()

		if err := r.Publish("user-1", map[string]string{"id": "notif-1"}); err != nil {
			t.Fatalf("配信エラー: %v", err)
		}

		select {
		case msg := <-ch:
			t.Errorf("別宛先のペイロードを受信してしまった: %s", msg)
		default:
		}
	})

	t.Run("シリアライズできないペイロードはエラーを返す", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		if err := r.Publish("user-1", make(chan int)); err == nil {
			t.Error("エラー: got nil, want error")
		}
	})
}

// TestStreamRegistryCancel は購読解除の動作を検証する。
func TestStreamRegistryCancel(t *testing.T) {
	t.Parallel()

	t.Run("解除した購読者には配信されずチャネルがクローズされる", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		ch, cancel := r.Subscribe("user-1")
		cancel()

		if got := r.count("user-1"); got != 0 {
			t.Errorf("解除後の購読数: got %d, want 0", got)
		}

		if err := r.Publish("user-1", map[string]string{"id": "notif-1"}); err != nil {
			t.Errorf("解除後の配信エラー: got %v, want nil", err)
		}

		if _, ok := <-ch; ok {
			t.Error("解除済みチャネルがクローズされていません")
		}
	})

	t.Run("解除関数は複数回呼んでも安全", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		_, cancel := r.Subscribe("user-1")
		cancel()
		cancel()

		if got := r.count("user-1"); got != 0 {
			t.Errorf("購読数: got %d, want 0", got)
		}
	})

	t.Run("解除は該当の購読者だけを削除する", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		_, cancel1 := r.Subscribe("user-1")
		ch2, cancel2 := r.Subscribe("user-1")
		defer cancel2()

		cancel1()

		if got := r.count("user-1"); got != 1 {
			t.Fatalf("購読数: got %d, want 1", got)
		}

		if err := r.Publish("user-1", map[string]string{"id": "notif-1"}); err != nil {
			t.Fatalf("配信エラー: %v", err)
		}
		if msg := <-ch2; msg == "" {
			t.Error("残った購読者がペイロードを受信できていません")
		}
	})
}

// TestStreamRegistrySlowSubscriber は受信が詰まった購読者の切断を検証する。
func TestStreamRegistrySlowSubscriber(t *testing.T) {
	t.Parallel()

	t.Run("バッファが溢れた購読者は切断され他の購読者への配信は継続する", func(t *testing.T) {
		t.Parallel()
		r := NewStreamRegistry()

		slow, cancelSlow := r.Subscribe("user-1")
		defer cancelSlow()
		fast, cancelFast := r.Subscribe("user-1")
		defer cancelFast()

		// slow側を一切読まずにバッファを溢れさせる
		for i := 0; i <= subscriberBufferSize; i++ {
			if err := r.Publish("user-1", map[string]int{"seq": i}); err != nil {
				t.Fatalf("配信エラー: %v", err)
			}
			// fast側は読み進める
			<-fast
		}

		if got := r.count("user-1"); got != 1 {
			t.Errorf("切断後の購読数: got %d, want 1", got)
		}

		// slow側のチャネルは溜まった分を読み切った後クローズされている
		received := 0
		for range slow {
			received++
		}
		if received != subscriberBufferSize {
			t.Errorf("切断前に受信したペイロード数: got %d, want %d", received, subscriberBufferSize)
		}
	})
}
