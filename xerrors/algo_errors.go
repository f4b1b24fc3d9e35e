package xerrors

var (
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = New(ErrInvalidArg, 400001, "empty data", "input data must not be empty", nil)
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400004, "invalid option type", "supported types: CALL, PUT", nil)
	// ErrInvalidSteps 步数必须为正。
	ErrInvalidSteps = New(ErrInvalidArg, 400020, "invalid steps", "steps must be a positive integer", nil)
	// ErrInvalidTimeStep 时间步长必须为正。
	ErrInvalidTimeStep = New(ErrInvalidArg, 400021, "invalid time step", "dt must be positive and finite", nil)
	// ErrInvalidVolatility 波动率必须为正。
	ErrInvalidVolatility = New(ErrInvalidArg, 400022, "invalid volatility", "volatility must be positive and finite", nil)
	// ErrInvalidBounds 上下界无效。
	ErrInvalidBounds = New(ErrInvalidArg, 400023, "invalid bounds", "min must not exceed max and both must be finite", nil)
	// ErrInvalidMarketParams 行情参数无效。
	ErrInvalidMarketParams = New(ErrInvalidArg, 400024, "invalid market parameters", "spot, strike, expiry and volatility must be positive and finite", nil)
	// ErrInvalidSimulations 模拟次数必须为正。
	ErrInvalidSimulations = New(ErrInvalidArg, 400025, "invalid simulations", "simulations must be a positive integer", nil)
	// ErrInvalidProbability 概率必须在 (0,1) 内。
	ErrInvalidProbability = New(ErrInvalidArg, 400026, "invalid probability", "probability must be in the open interval (0, 1)", nil)
	// ErrInvalidMultiple 赔率或损失比例必须为正。
	ErrInvalidMultiple = New(ErrInvalidArg, 400027, "invalid multiple", "win multiple and loss fraction must be positive and finite", nil)
	// ErrInvalidBankroll 初始资金必须为正。
	ErrInvalidBankroll = New(ErrInvalidArg, 400028, "invalid bankroll", "initial bankroll must be positive and finite", nil)
	// ErrInvalidBetSize 下注额必须为正。
	ErrInvalidBetSize = New(ErrInvalidArg, 400029, "invalid bet size", "bet size must be positive and finite", nil)
	// ErrInvalidTrials 试验次数必须为正。
	ErrInvalidTrials = New(ErrInvalidArg, 400030, "invalid trials", "trials must be a positive integer", nil)
	// ErrInvalidUpperMultiple 吸收上界倍数必须大于 1。
	ErrInvalidUpperMultiple = New(ErrInvalidArg, 400031, "invalid upper multiple", "absorbing upper multiple must be greater than 1", nil)
	// ErrInvalidConfidence 置信度必须在 (0,1) 内。
	ErrInvalidConfidence = New(ErrInvalidArg, 400032, "invalid confidence", "confidence level must be in (0, 1)", nil)
	// ErrInvalidExpression 表达式无法编译。
	ErrInvalidExpression = New(ErrInvalidArg, 400033, "invalid expression", "predicate expression failed to compile", nil)
	// ErrMathDomain 数学定义域错误。
	ErrMathDomain = New(ErrDomain, 422001, "math domain error", "logarithm of a non-positive growth term", nil)
	// ErrNumericOverflow 输入合法但结果溢出为非有限值。
	ErrNumericOverflow = New(ErrDomain, 422002, "numeric overflow", "result is not a finite number", nil)
	// ErrMathConvergence 数学计算未收敛。
	ErrMathConvergence = New(ErrInternal, 500002, "math convergence failed", "algorithm failed to converge", nil)
	// ErrJobNotFound 任务不存在或已过期。
	ErrJobNotFound = New(ErrNotFound, 404001, "job not found", "job id is unknown or its result has expired", nil)
	// ErrQueueFull 任务队列已满。
	ErrQueueFull = New(ErrLimitExceeded, 429001, "job queue full", "worker pool rejected the job", nil)
)
