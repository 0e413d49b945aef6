// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// taskサービスがnotificationサービスへ通知を依頼する際や、
// gatewayが内部サービスのAPIを呼び出す際に使用する。
package httpclient
