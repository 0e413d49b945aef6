// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// JWTの発行と検証、CORS、内部サービスへのリクエストルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。認証済みリクエストのユーザーIDをヘッダーに載せて内部サービスに
// 転送する。通知のSSE購読はストリーミングのため、ダッシュボードが通知サービス
// へ直接接続する。
package gateway
