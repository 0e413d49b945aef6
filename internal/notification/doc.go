// Package notification は通知サービスの内部実装を提供する。
//
// 通知レコードの作成・一覧取得・既読管理と、Server-Sent Eventsによる
// ダッシュボードへのライブ配信を行う。ライブ配信はベストエフォートであり、
// 配信保証は持たない。正となるのは常に永続化された通知レコードである。
package notification
