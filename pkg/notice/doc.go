// Package notice は通知の種類と、種類ごとの構造化ペイロードを定義する。
//
// 通知レコードのdataフィールドは通知タイプをタグとするユニオンであり、
// タイプごとに専用のData構造体を持つ。生成側（taskサービス）と
// 消費側（ダッシュボード）の両方がこのパッケージを通じて型付きで扱う。
package notice
