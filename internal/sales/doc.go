// Package sales は営業案件の管理サービスを実装する。
//
// 案件は顧客IDと現在の商談ステータス（New → Contacted → Agreement → Closed）
// を持ち、ステータスが変わるたびに変更履歴を残す。全ての操作にADMINまたは
// SALES_REPのロールが必要。
package sales
