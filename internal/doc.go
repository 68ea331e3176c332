// Package internal 實現了多人卡牌遊戲的即時會話中繼服務。
//
// 伺服器把陌生玩家配對進共享房間，協調準備／倒數／開局流程，
// 在房間成員之間原樣轉發不透明的遊戲動作，並在玩家消失或停滯時
// 回收資源。伺服器從不解讀遊戲規則。
//
// # 房間生命週期
//
// 核心是超時驅動的房間狀態機：
//
//	Lobby → Countdown → InProgress → (再戰投票) → InProgress
//
//   - 公開房：第二人到位後等待 60 秒自動開局；滿四人立即倒數；
//     全員準備也立即倒數
//   - 私人房：以房號加入，只有房主能開局
//   - 玩家 10 分鐘未準備、單人房 5 分鐘無人加入即踢出
//   - 倒數從 5 開始每秒廣播一次，數到零開局並分配座位
//
// # 並發模型
//
// 所有狀態變更由核心的單一互斥鎖序列化，等價於單執行緒事件迴圈。
// 每個計時器回呼觸發時重新上鎖、重新查詢、重新驗證前提，
// 容忍「取消了卻仍然觸發」的競態。
//
// # 架構
//
//   - Registry：會話 → 玩家資料
//   - RoomStore：房間創建、成員變動、刪除與配對掃描
//   - Core：訊息分派、生命週期計時器、廣播、定期清掃
//   - Hub：WebSocket 傳輸（心跳、異步發送）
//   - Handler：唯讀的健康檢查與統計端點
package internal
