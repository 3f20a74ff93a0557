// Package customer は顧客管理サービスを実装する。
//
// 顧客とその顧客に紐づくメモをSQLiteに保存し、検索・絞り込み・並び替え・
// ページングに対応した一覧を提供する。全ての操作にADMINまたはSALES_REPの
// ロールが必要で、顧客の削除はADMINだけが行える。
package customer
