package generr

type mErr struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Resp 成功返回
type Resp struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(data interface{}) Resp {
	return Resp{Code: 200, Msg: "success", Data: data}
}

var (
	ParseParam  = &mErr{400, "参数错误"}
	ServerError = &mErr{500, "服务错误"}
)

var (
	SignMiss     = &mErr{601, "s参数缺失"}
	SignNotMatch = &mErr{602, "s不匹配"}
	TimestampErr = &mErr{603, "t参数错误"}
	TimestampOut = &mErr{604, "t超时"}
	AppNotFound  = &mErr{605, "app_id不存在"}
	ReadDB       = &mErr{698, "读数据库错误"}
	UpdateDB     = &mErr{699, "更新数据库错误"}

	UnknownAction      = &mErr{701, "未知或已停用的行为类型"}
	QuotaNotConfigured = &mErr{702, "每日积分上限未配置"}
	UserNotFound       = &mErr{703, "用户不存在"}

	InvalidAmount      = &mErr{801, "金额错误"}
	InvalidReferrerCfg = &mErr{802, "邀请人分佣配置错误"}
)
